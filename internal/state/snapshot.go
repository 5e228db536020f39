// Package state implements the kernel's Execution State: an immutable
// snapshot of operation outputs and variable bindings at a single
// (branch, counter) point, built copy-on-write from its parent.
package state

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// entry is one slot of bound state: the value plus whether it was produced
// this tick. Retained entries survive Fork with fresh cleared; an entry
// whose every direct consumer fired in the tick it was fresh is dropped
// from the successor outright by Drop, rather than merely flagged.
type entry struct {
	value domain.SV
	fresh bool
}

// Snapshot is one immutable node of the execution graph: the full set of
// operation outputs known at this point, plus bookkeeping needed by the
// resolver to decide what fires next tick. Snapshots are never mutated in
// place; Fork produces a new Snapshot by copying every entry of its parent
// into new maps, so the parent is never touched.
type Snapshot struct {
	Branch  string
	Counter int64

	byID   *xsync.MapOf[int, entry]
	byName *xsync.MapOf[string, int]
}

// New returns an empty root snapshot for the given branch.
func New(branch string) *Snapshot {
	return &Snapshot{
		Branch:  branch,
		Counter: 0,
		byID:    xsync.NewMapOf[int, entry](),
		byName:  xsync.NewMapOf[string, int](),
	}
}

// Fork produces a new snapshot at the given (branch, counter) — one counter
// ahead for a tick, counter 0 for a revert's graft — copying every entry from
// the parent (marking none fresh — freshness is tick-scoped) so the parent
// remains untouched and reusable by any other branch grafted from it.
func (s *Snapshot) Fork(branch string, counter int64) *Snapshot {
	next := &Snapshot{
		Branch:  branch,
		Counter: counter,
		byID:    xsync.NewMapOf[int, entry](),
		byName:  xsync.NewMapOf[string, int](),
	}
	s.byID.Range(func(id int, e entry) bool {
		e.fresh = false
		next.byID.Store(id, e)
		return true
	})
	s.byName.Range(func(name string, id int) bool {
		next.byName.Store(name, id)
		return true
	})
	return next
}

// Set records a fresh output for an operation. Called once per tick, at
// most once per operation, by the step driver after an effect returns.
func (s *Snapshot) Set(opID int, name string, v domain.SV) {
	s.byID.Store(opID, entry{value: v, fresh: true})
	if name != "" {
		s.byName.Store(name, opID)
	}
}

// Drop removes an operation's entry entirely: the §4.7 rule for a
// successor snapshot that saw every one of a fresh producer's direct
// consumers fire in the same tick. Never called on an already-published
// snapshot — only on the one a Tick is still building.
func (s *Snapshot) Drop(opID int) {
	s.byID.Delete(opID)
	var staleName string
	found := false
	s.byName.Range(func(name string, id int) bool {
		if id == opID {
			staleName, found = name, true
			return false
		}
		return true
	})
	if found {
		s.byName.Delete(staleName)
	}
}

// Output implements domain.StateReader.
func (s *Snapshot) Output(opID int) (domain.SV, bool) {
	e, ok := s.byID.Load(opID)
	if !ok {
		return domain.SV{}, false
	}
	return e.value, true
}

// OutputByName implements domain.StateReader.
func (s *Snapshot) OutputByName(name string) (domain.SV, bool) {
	id, ok := s.byName.Load(name)
	if !ok {
		return domain.SV{}, false
	}
	return s.Output(id)
}

// IsFresh reports whether an operation's output was produced this tick
// (i.e. since the last Fork).
func (s *Snapshot) IsFresh(opID int) bool {
	e, ok := s.byID.Load(opID)
	return ok && e.fresh
}

// Fresh returns the IDs of all operations whose output is fresh this tick.
func (s *Snapshot) Fresh() []int {
	var out []int
	s.byID.Range(func(id int, e entry) bool {
		if e.fresh {
			out = append(out, id)
		}
		return true
	})
	return out
}

// Has reports whether an operation has ever produced a value reachable from
// this snapshot (fresh or retained).
func (s *Snapshot) Has(opID int) bool {
	_, ok := s.byID.Load(opID)
	return ok
}
