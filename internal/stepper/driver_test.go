package stepper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/resolver"
	"github.com/lucid-cells/cellrun/internal/state"
)

func constEffect(v domain.SV) domain.Effect {
	return func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
		return domain.OperationFnOutput{Output: v}, nil
	}
}

func TestTickFiresRootOpOnBootstrap(t *testing.T) {
	ops := []*domain.OperationNode{
		{ID: 1, Name: "a", Effect: constEffect(domain.Int(10))},
	}
	g := resolver.NewGraph(ops, nil)
	d := New(g)

	snap := state.New("main")
	result, err := d.Tick(context.Background(), snap, nil)
	require.NoError(t, err)
	require.False(t, result.Done)

	v := result.Fired[1]
	i, _ := v.AsInt()
	assert.Equal(t, int64(10), i)
	assert.Equal(t, int64(1), result.Snapshot.Counter)
}

func TestTickPropagatesOneHop(t *testing.T) {
	ops := []*domain.OperationNode{
		{ID: 1, Name: "a", Effect: constEffect(domain.Int(1))},
		{ID: 2, Name: "b", Inputs: domain.InputSignature{Items: []domain.InputItemConfig{
			{Name: "a", Bucket: domain.BucketGlobal},
		}}, Effect: func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
			globals, _ := in.ObjectGet("globals")
			a, _ := globals.ObjectGet("a")
			n, _ := a.AsInt()
			return domain.OperationFnOutput{Output: domain.Int(n + 1)}, nil
		}},
	}
	deps := []domain.Dependency{{Producer: 1, Consumer: 2, Reason: domain.ReasonGlobal}}
	g := resolver.NewGraph(ops, deps)
	d := New(g)

	snap := state.New("main")
	tick1, err := d.Tick(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Contains(t, tick1.Fired, 1)
	assert.NotContains(t, tick1.Fired, 2, "op 2 must not fire the same tick its producer does")

	justFired := map[int]bool{1: true}
	tick2, err := d.Tick(context.Background(), tick1.Snapshot, justFired)
	require.NoError(t, err)
	require.Contains(t, tick2.Fired, 2)
	v, _ := tick2.Fired[2].AsInt()
	assert.Equal(t, int64(2), v)
}

func TestTickDoneWhenNothingEligible(t *testing.T) {
	ops := []*domain.OperationNode{{ID: 1, Name: "a", Effect: constEffect(domain.Int(1))}}
	g := resolver.NewGraph(ops, nil)
	d := New(g)

	snap := state.New("main")
	snap.Set(1, "a", domain.Int(1))

	result, err := d.Tick(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.True(t, result.Done)
}

func TestTickRecordsEffectFailureButStillPublishesNull(t *testing.T) {
	ops := []*domain.OperationNode{
		{ID: 1, Name: "a", Effect: func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
			return domain.OperationFnOutput{}, errors.New("boom")
		}},
	}
	g := resolver.NewGraph(ops, nil)
	d := New(g)

	snap := state.New("main")
	result, err := d.Tick(context.Background(), snap, nil)
	require.NoError(t, err)
	require.Contains(t, result.Failed, 1)
	require.True(t, result.Snapshot.Has(1), "a failed effect still publishes a value so dependents can fire on it")
	v, ok := result.Snapshot.Output(1)
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestTickDropsFullyConsumedProducer(t *testing.T) {
	ops := []*domain.OperationNode{
		{ID: 1, Name: "a", Effect: constEffect(domain.Int(1))},
		{ID: 2, Name: "b", Inputs: domain.InputSignature{Items: []domain.InputItemConfig{
			{Name: "a", Bucket: domain.BucketGlobal},
		}}, Effect: func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
			globals, _ := in.ObjectGet("globals")
			a, _ := globals.ObjectGet("a")
			n, _ := a.AsInt()
			return domain.OperationFnOutput{Output: domain.Int(n * 2)}, nil
		}},
	}
	deps := []domain.Dependency{{Producer: 1, Consumer: 2, Reason: domain.ReasonGlobal}}
	g := resolver.NewGraph(ops, deps)
	d := New(g)

	snap := state.New("main")
	tick1, err := d.Tick(context.Background(), snap, nil)
	require.NoError(t, err)

	tick2, err := d.Tick(context.Background(), tick1.Snapshot, map[int]bool{1: true})
	require.NoError(t, err)
	require.Contains(t, tick2.Fired, 2)
	assert.False(t, tick2.Snapshot.Has(1), "op 1's value is dropped once its only consumer fired")
}
