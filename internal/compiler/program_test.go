package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
)

func TestCompileProgramWiresDependenciesByName(t *testing.T) {
	c := New("")
	cells := []domain.CellDecl{
		{ID: "p#1", Kind: domain.CellCode, Name: "base", Source: "base = 10"},
		{ID: "p#2", Kind: domain.CellCode, Name: "doubled", Source: "doubled = base * 2"},
	}

	g, err := CompileProgram(c, cells)
	require.NoError(t, err)
	require.Len(t, g.Deps, 1)
	assert.Equal(t, 1, g.Deps[0].Producer)
	assert.Equal(t, 2, g.Deps[0].Consumer)

	assert.False(t, cells[0].NeedsUpdate)
	assert.False(t, cells[1].NeedsUpdate)
}

func TestCompileProgramLatchesNeedsUpdateOnFailure(t *testing.T) {
	c := New("")
	cells := []domain.CellDecl{
		{ID: "p#1", Kind: domain.CellCode, Name: "ok", Source: "ok = 1"},
		{ID: "p#2", Kind: domain.CellCode, Name: "bad", Source: "   "},
	}

	_, err := CompileProgram(c, cells)
	require.Error(t, err)
	assert.True(t, cells[1].NeedsUpdate)
}

func TestCompileProgramIgnoresUnresolvedExternalNames(t *testing.T) {
	c := New("")
	cells := []domain.CellDecl{
		{ID: "p#1", Kind: domain.CellCode, Name: "y", Source: "y = external_input + 1"},
	}
	g, err := CompileProgram(c, cells)
	require.NoError(t, err)
	assert.Empty(t, g.Deps)
	require.Len(t, g.Operations, 1)

	op := g.Operations[1]
	in := domain.Object(map[string]domain.SV{
		"globals": domain.Object(map[string]domain.SV{"external_input": domain.Int(4)}),
		"args":    domain.Object(nil), "kwargs": domain.Object(nil),
	})
	out, err := op.Effect(context.Background(), nil, in)
	require.NoError(t, err)
	n, _ := out.Output.AsInt()
	assert.Equal(t, int64(5), n)
}
