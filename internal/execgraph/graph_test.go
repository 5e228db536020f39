package execgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
)

func TestRootIsIdempotent(t *testing.T) {
	g := New()
	a := g.Root()
	b := g.Root()
	assert.Same(t, a, b)
}

func TestAppendUpdatesHead(t *testing.T) {
	g := New()
	root := g.Root()
	root.Set(1, "x", domain.Int(1))
	next := root.Fork("main", 1)
	g.Append(next)

	head, ok := g.Head("main")
	require.True(t, ok)
	assert.Equal(t, int64(1), head.Counter)
}

func TestRevertGraftsNewBranchWithoutMutatingSource(t *testing.T) {
	g := New()
	root := g.Root()
	root.Set(1, "x", domain.Int(1))
	tip := root.Fork("main", 1)
	tip.Set(2, "y", domain.Int(2))
	g.Append(tip)

	grafted, err := g.Revert("main~1", "main", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), grafted.Counter)
	assert.True(t, grafted.Has(1))
	assert.True(t, grafted.Has(2))

	origHead, ok := g.Head("main")
	require.True(t, ok)
	assert.Equal(t, int64(1), origHead.Counter, "reverting must not touch the original branch's head")

	parentBranch, parentCounter, ok := g.GraftPoint("main~1")
	require.True(t, ok)
	assert.Equal(t, "main", parentBranch)
	assert.Equal(t, int64(1), parentCounter)
}

func TestRevertRejectsExistingBranch(t *testing.T) {
	g := New()
	g.Root()
	_, err := g.Revert("main", "main", 0)
	require.Error(t, err)
	var kerr *domain.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, domain.ErrGraph, kerr.Code)
}

func TestRevertUnknownSourceFails(t *testing.T) {
	g := New()
	g.Root()
	_, err := g.Revert("branchA", "main", 5)
	assert.Error(t, err)
}
