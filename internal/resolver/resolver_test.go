package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/state"
)

func op(id int, name string) *domain.OperationNode {
	return &domain.OperationNode{ID: id, Name: name}
}

func TestEligibleBootstrapTick(t *testing.T) {
	ops := []*domain.OperationNode{op(1, "a"), op(2, "b")}
	deps := []domain.Dependency{{Producer: 1, Consumer: 2, Reason: domain.ReasonGlobal}}
	g := NewGraph(ops, deps)

	snap := state.New("main")
	eligible := g.Eligible(snap, nil)
	assert.Equal(t, []int{1}, eligible, "only the root op with no deps fires on bootstrap")
}

func TestEligibleOneHopPerTick(t *testing.T) {
	ops := []*domain.OperationNode{op(1, "a"), op(2, "b"), op(3, "c")}
	deps := []domain.Dependency{
		{Producer: 1, Consumer: 2, Reason: domain.ReasonGlobal},
		{Producer: 2, Consumer: 3, Reason: domain.ReasonGlobal},
	}
	g := NewGraph(ops, deps)

	snap := state.New("main")
	snap.Set(1, "a", domain.Int(1))

	eligible := g.Eligible(snap, map[int]bool{1: true})
	require.Equal(t, []int{2}, eligible, "op 3 must wait a further tick even though op 1 already produced")
}

func TestEligibleSkipsAlreadyFreshThisTick(t *testing.T) {
	ops := []*domain.OperationNode{op(1, "a")}
	g := NewGraph(ops, nil)

	snap := state.New("main")
	snap.Set(1, "a", domain.Int(1))

	eligible := g.Eligible(snap, nil)
	assert.Empty(t, eligible, "an op with a fresh output this tick must not be re-offered")
}

func TestEligibleWaitsForAllDependencies(t *testing.T) {
	ops := []*domain.OperationNode{op(1, "a"), op(2, "b"), op(3, "c")}
	deps := []domain.Dependency{
		{Producer: 1, Consumer: 3, Reason: domain.ReasonGlobal},
		{Producer: 2, Consumer: 3, Reason: domain.ReasonGlobal},
	}
	g := NewGraph(ops, deps)

	snap := state.New("main")
	snap.Set(1, "a", domain.Int(1))

	eligible := g.Eligible(snap, map[int]bool{1: true})
	assert.Empty(t, eligible, "op 3 needs both producers present, not just one")
}

func TestRenderDOTIncludesEveryOpAndEdge(t *testing.T) {
	ops := []*domain.OperationNode{op(1, "a"), op(2, "b")}
	deps := []domain.Dependency{{Producer: 1, Consumer: 2, Reason: domain.ReasonGlobal}}
	g := NewGraph(ops, deps)

	dot := g.RenderDOT()
	assert.Contains(t, dot, "op1")
	assert.Contains(t, dot, "op2")
	assert.Contains(t, dot, "op1 -> op2")
}
