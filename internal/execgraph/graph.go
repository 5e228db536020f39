// Package execgraph implements the branching Execution Graph: an
// in-memory DAG of immutable snapshots keyed by
// (branch, counter), supporting revert-and-diverge the way a sync DAG
// grafts a new head onto an earlier node instead of mutating history.
package execgraph

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/state"
)

// key addresses one node of the graph.
type key struct {
	branch  string
	counter int64
}

// Graph holds every snapshot ever produced for this instance, never
// persisted to disk (per the kernel's explicit non-goal) — it lives only in
// the owning process's memory for the instance's lifetime.
type Graph struct {
	nodes  *xsync.MapOf[key, *state.Snapshot]
	parent *xsync.MapOf[key, key] // graft point: branch's first node -> (parentBranch, parentCounter)
	heads  *xsync.MapOf[string, int64]
}

func New() *Graph {
	return &Graph{
		nodes:  xsync.NewMapOf[key, *state.Snapshot](),
		parent: xsync.NewMapOf[key, key](),
		heads:  xsync.NewMapOf[string, int64](),
	}
}

const rootBranch = "main"

// Root creates (or returns, if it already exists) the root snapshot of the
// main branch.
func (g *Graph) Root() *state.Snapshot {
	if snap, ok := g.At(rootBranch, 0); ok {
		return snap
	}
	snap := state.New(rootBranch)
	g.nodes.Store(key{rootBranch, 0}, snap)
	g.heads.Store(rootBranch, 0)
	return snap
}

// Append registers a newly-produced snapshot as the new head of its branch.
func (g *Graph) Append(snap *state.Snapshot) {
	g.nodes.Store(key{snap.Branch, snap.Counter}, snap)
	g.heads.Store(snap.Branch, snap.Counter)
}

// At looks up the snapshot at an exact (branch, counter) address.
func (g *Graph) At(branch string, counter int64) (*state.Snapshot, bool) {
	return g.nodes.Load(key{branch, counter})
}

// Head returns the current tip snapshot of a branch.
func (g *Graph) Head(branch string) (*state.Snapshot, bool) {
	counter, ok := g.heads.Load(branch)
	if !ok {
		return nil, false
	}
	return g.At(branch, counter)
}

// Branches returns every known branch name.
func (g *Graph) Branches() []string {
	var out []string
	g.heads.Range(func(b string, _ int64) bool {
		out = append(out, b)
		return true
	})
	return out
}

// Revert grafts a new branch rooted at (fromBranch, atCounter): the new
// branch's first node is a copy of that snapshot under the new branch name,
// and the old branch's later history is left untouched and still
// addressable — reverting never destroys a node, it only changes which
// branch becomes the instance's active one.
func (g *Graph) Revert(newBranch, fromBranch string, atCounter int64) (*state.Snapshot, error) {
	src, ok := g.At(fromBranch, atCounter)
	if !ok {
		return nil, fmt.Errorf("execgraph: no snapshot at %s@%d", fromBranch, atCounter)
	}
	if _, exists := g.heads.Load(newBranch); exists {
		return nil, &domain.KernelError{Code: domain.ErrGraph, Message: fmt.Sprintf("branch %q already exists", newBranch)}
	}
	grafted := src.Fork(newBranch, 0)
	g.nodes.Store(key{newBranch, 0}, grafted)
	g.parent.Store(key{newBranch, 0}, key{fromBranch, atCounter})
	g.heads.Store(newBranch, 0)
	return grafted, nil
}

// GraftPoint reports the (branch, counter) a branch was forked from, if any.
func (g *Graph) GraftPoint(branch string) (parentBranch string, parentCounter int64, ok bool) {
	k, ok := g.parent.Load(key{branch, 0})
	if !ok {
		return "", 0, false
	}
	return k.branch, k.counter, true
}
