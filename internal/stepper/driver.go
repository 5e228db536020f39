// Package stepper implements the Step Driver: advancing an execution state
// by exactly one tick of one-hop dependency propagation.
package stepper

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/resolver"
	"github.com/lucid-cells/cellrun/internal/state"
)

var tracer = otel.Tracer("cellrun/stepper")

// TickResult is everything one Tick produced: the new snapshot plus the
// per-operation outcome of every operation that attempted to fire.
type TickResult struct {
	Snapshot *state.Snapshot
	Fired    map[int]domain.SV
	Failed   map[int]error
	Done     bool // no operation was eligible this tick
}

// Driver runs ticks against a fixed dependency graph.
type Driver struct {
	Graph *resolver.Graph
}

func New(g *resolver.Graph) *Driver {
	return &Driver{Graph: g}
}

// Tick runs exactly one round of propagation: every operation eligible
// given justFired (the set of operations that fired in the previous tick,
// nil on the bootstrap tick) runs its Effect concurrently, each on its own
// goroutine, synchronized by a sync.WaitGroup, the same shape a wave
// dispatcher uses but applied per tick here instead of per wave. A failed
// effect still publishes a (Null, stderr) result rather than being
// dropped, so dependents get a decision to make on the null next tick.
// Results are merged into a forked snapshot; any producer that was fresh
// in the parent and saw every one of its direct consumers fire this tick
// is dropped from the successor (never from the parent itself, which stays
// immutable) per the retain-until-consumed rule.
func (d *Driver) Tick(ctx context.Context, snap *state.Snapshot, justFired map[int]bool) (*TickResult, error) {
	eligible := d.Graph.Eligible(snap, justFired)

	ctx, span := tracer.Start(ctx, "tick", trace.WithAttributes(
		attribute.String("branch", snap.Branch),
		attribute.Int64("counter", snap.Counter),
		attribute.Int("eligible_count", len(eligible)),
	))
	defer span.End()

	if len(eligible) == 0 {
		return &TickResult{Snapshot: snap, Done: true}, nil
	}

	next := snap.Fork(snap.Branch, snap.Counter+1)
	callCtx := domain.WithCaller(ctx, driverCaller{graph: d.Graph, snap: snap})

	var mu sync.Mutex
	fired := make(map[int]domain.SV)
	failed := make(map[int]error)

	var wg sync.WaitGroup
	for _, opID := range eligible {
		op := d.Graph.Operations[opID]
		wg.Add(1)
		go func(op *domain.OperationNode) {
			defer wg.Done()
			in := buildInput(op, snap)
			out, err := op.Effect(callCtx, snap, in)
			if err != nil {
				out = domain.OperationFnOutput{Output: domain.Null(), Stderr: []string{err.Error()}}
			}
			if op.Output.Kind == domain.OutputFunction {
				// A function cell's own value is a handle to itself, not
				// whatever its Effect happened to compute.
				out.Output = domain.Ref(op.ID, nil)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[op.ID] = domain.NewEffectError(op.ID, "effect returned error", err)
			}
			fired[op.ID] = out.Output
			next.Set(op.ID, op.Name, out.Output)
		}(op)
	}
	wg.Wait()

	consumers := make(map[int][]int, len(d.Graph.Deps))
	for _, dep := range d.Graph.Deps {
		consumers[dep.Producer] = append(consumers[dep.Producer], dep.Consumer)
	}
	for _, producerID := range snap.Fresh() {
		if _, refired := fired[producerID]; refired {
			continue // overwritten by this tick's own Set; never drop that
		}
		cs := consumers[producerID]
		if len(cs) == 0 {
			continue // nothing consumes it; retain indefinitely
		}
		allFired := true
		for _, c := range cs {
			if _, ok := fired[c]; !ok {
				allFired = false
				break
			}
		}
		if allFired {
			next.Drop(producerID)
		}
	}

	span.SetAttributes(attribute.Int("fired_count", len(fired)), attribute.Int("failed_count", len(failed)))

	return &TickResult{Snapshot: next, Fired: fired, Failed: failed}, nil
}

// driverCaller resolves a same-tick function call against the snapshot the
// calling tick started from: sub-invocations never see this tick's own
// partial results, only what was already published.
type driverCaller struct {
	graph *resolver.Graph
	snap  *state.Snapshot
}

func (c driverCaller) Call(ctx context.Context, opID int, args []domain.SV, kwargs map[string]domain.SV) (domain.SV, error) {
	op, ok := c.graph.Operations[opID]
	if !ok || op.Call == nil {
		return domain.SV{}, fmt.Errorf("stepper: operation %d is not callable", opID)
	}
	out, err := op.Call(ctx, c.snap, args, kwargs)
	if err != nil {
		return domain.SV{}, err
	}
	return out.Output, nil
}

// buildInput assembles the SV an operation's Effect receives by reading its
// declared globals/args/kwargs from the snapshot.
func buildInput(op *domain.OperationNode, snap domain.StateReader) domain.SV {
	globals := map[string]domain.SV{}
	args := map[string]domain.SV{}
	kwargs := map[string]domain.SV{}
	for _, item := range op.Inputs.Items {
		v, ok := snap.OutputByName(item.Name)
		if !ok {
			continue
		}
		switch item.Bucket {
		case domain.BucketGlobal:
			globals[item.Name] = v
		case domain.BucketArg:
			args[item.Name] = v
		case domain.BucketKwarg:
			kwargs[item.Name] = v
		}
	}
	return domain.Object(map[string]domain.SV{
		"globals": domain.Object(globals),
		"args":    domain.Object(args),
		"kwargs":  domain.Object(kwargs),
	})
}
