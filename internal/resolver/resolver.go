// Package resolver builds the dependency graph between compiled operations
// and decides, tick by tick, which operations are eligible to fire next.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/state"
)

// Graph is the compiled dependency graph: operations plus the edges the
// compiler derived from each operation's free-identifier / signature scan.
type Graph struct {
	Operations map[int]*domain.OperationNode
	Deps       []domain.Dependency

	// ByName indexes operations by their cell name, for callers that
	// resolve a function by name rather than by ID (the instance's
	// invokeFunction, which serves web cell routes). FunctionNames is the subset of ByName whose
	// Output.Kind is OutputFunction, mirroring spec.md's function_names.
	ByName        map[string]*domain.OperationNode
	FunctionNames map[string]int

	byConsumer map[int][]domain.Dependency
}

// NewGraph indexes deps by consumer for fast eligibility scans.
func NewGraph(ops []*domain.OperationNode, deps []domain.Dependency) *Graph {
	g := &Graph{
		Operations:    make(map[int]*domain.OperationNode, len(ops)),
		ByName:        make(map[string]*domain.OperationNode, len(ops)),
		FunctionNames: make(map[string]int),
		Deps:          deps,
		byConsumer:    make(map[int][]domain.Dependency),
	}
	for _, op := range ops {
		g.Operations[op.ID] = op
		if op.Name != "" {
			g.ByName[op.Name] = op
			if op.Output.Kind == domain.OutputFunction {
				g.FunctionNames[op.Name] = op.ID
			}
		}
	}
	for _, d := range deps {
		g.byConsumer[d.Consumer] = append(g.byConsumer[d.Consumer], d)
	}
	// Deterministic tie-break order within each consumer's dependency list:
	// (producer, reason) as spec.md requires.
	for c := range g.byConsumer {
		ds := g.byConsumer[c]
		sort.Slice(ds, func(i, j int) bool {
			if ds[i].Producer != ds[j].Producer {
				return ds[i].Producer < ds[j].Producer
			}
			return ds[i].Reason < ds[j].Reason
		})
	}
	return g
}

// Eligible returns the operation IDs eligible to fire this tick, in
// deterministic (producer, consumer, reason) order. An operation is
// eligible when:
//   - it has not already fired in this snapshot's current tick (no fresh
//     output of its own yet), and
//   - every dependency it has is satisfied (the producer has ever emitted,
//     per the retain-until-consumed rule), and
//   - on the bootstrap tick (justFired == nil) it has no dependencies at
//     all, or on later ticks at least one of its producers is in justFired
//     — the one-hop-per-tick propagation rule: an operation only re-fires
//     in the tick immediately following a producer it depends on.
func (g *Graph) Eligible(snap *state.Snapshot, justFired map[int]bool) []int {
	type cand struct {
		op       int
		producer int
		reason   domain.ReasonKind
	}
	var cands []cand

	for opID := range g.Operations {
		if snap.IsFresh(opID) {
			continue // already fired this tick
		}
		deps := g.byConsumer[opID]
		if len(deps) == 0 {
			if justFired == nil {
				cands = append(cands, cand{op: opID})
			}
			continue
		}
		allSatisfied := true
		hopTriggered := justFired == nil
		var minProducer = -1
		var minReason domain.ReasonKind
		for _, d := range deps {
			if !snap.Has(d.Producer) {
				allSatisfied = false
				break
			}
			if justFired != nil && justFired[d.Producer] {
				hopTriggered = true
			}
			if minProducer == -1 || d.Producer < minProducer {
				minProducer, minReason = d.Producer, d.Reason
			}
		}
		if allSatisfied && hopTriggered {
			cands = append(cands, cand{op: opID, producer: minProducer, reason: minReason})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].producer != cands[j].producer {
			return cands[i].producer < cands[j].producer
		}
		if cands[i].op != cands[j].op {
			return cands[i].op < cands[j].op
		}
		return cands[i].reason < cands[j].reason
	})

	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.op
	}
	return out
}

// RenderDOT produces Graphviz DOT text describing the dependency graph, for
// observers that want a visual of the current wiring (supplemented from
// chidori's render_dependency_graph, per SPEC_FULL.md).
func (g *Graph) RenderDOT() string {
	var b strings.Builder
	b.WriteString("digraph cells {\n")
	ids := make([]int, 0, len(g.Operations))
	for id := range g.Operations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		op := g.Operations[id]
		label := op.Name
		if label == "" {
			label = fmt.Sprintf("op%d", id)
		}
		b.WriteString(fmt.Sprintf("  op%d [label=%q];\n", id, label))
	}
	for _, d := range g.Deps {
		b.WriteString(fmt.Sprintf("  op%d -> op%d [label=%q];\n", d.Producer, d.Consumer, string(d.Reason)))
	}
	b.WriteString("}\n")
	return b.String()
}
