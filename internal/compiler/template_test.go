package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
)

func TestCompileTemplateSubstitutesPlaceholders(t *testing.T) {
	c := New("")
	cell := domain.CellDecl{ID: "p#1", Kind: domain.CellTemplate, Name: "greeting", Source: "Hello, {{ name }}!"}

	op, names, err := c.compileTemplate(cell)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, names)
	assert.False(t, op.Inputs.Items[0].Required, "template placeholders are optional")

	in := domain.Object(map[string]domain.SV{
		"globals": domain.Object(map[string]domain.SV{"name": domain.String("Ada")}),
		"args":    domain.Object(nil), "kwargs": domain.Object(nil),
	})
	out, err := op.Effect(context.Background(), nil, in)
	require.NoError(t, err)
	s, _ := out.Output.AsString()
	assert.Equal(t, "Hello, Ada!", s)
}

func TestCompileTemplateMissingPlaceholderRendersEmpty(t *testing.T) {
	c := New("")
	cell := domain.CellDecl{ID: "p#2", Kind: domain.CellTemplate, Source: "Hi {{ who }}"}
	op, _, err := c.compileTemplate(cell)
	require.NoError(t, err)

	in := domain.Object(map[string]domain.SV{
		"globals": domain.Object(nil), "args": domain.Object(nil), "kwargs": domain.Object(nil),
	})
	out, err := op.Effect(context.Background(), nil, in)
	require.NoError(t, err)
	s, _ := out.Output.AsString()
	assert.Equal(t, "Hi ", s)
}

func TestPlaceholderNamesDedupAndOrder(t *testing.T) {
	names := placeholderNames("{{ a }} and {{ b }} and {{ a }}")
	assert.Equal(t, []string{"a", "b"}, names)
}
