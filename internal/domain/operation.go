package domain

import "context"

// StateReader is the read-only view of a snapshot an Effect receives. It is
// defined here (rather than imported from package state) so that domain has
// no dependency on state, which itself depends on domain for SV/Operation.
type StateReader interface {
	// Output returns the last fired output of the given operation, if any.
	Output(opID int) (SV, bool)
	// OutputByName resolves an operation by its cell/operation name.
	OutputByName(name string) (SV, bool)
}

// Effect is the function an Operation Node runs when the resolver marks it
// eligible to fire. It receives the current snapshot (read-only) and the
// already-assembled input value, and returns either a plain value or a
// function-kind output. Goroutines + context cancellation are how an effect
// expresses concurrency or abandons in-flight work; no Future type is used,
// work is dispatched directly on goroutines coordinated by a
// sync.WaitGroup.
type Effect func(ctx context.Context, s StateReader, in SV) (OperationFnOutput, error)

// CallEffect is a function-kind operation's body, invoked directly by the
// step driver when another operation calls it by name instead of reading
// it from a snapshot's bound inputs. It runs within the calling
// operation's own tick: the splice is never a separate graph node. Only
// set on operations whose Output.Kind is OutputFunction.
type CallEffect func(ctx context.Context, s StateReader, args []SV, kwargs map[string]SV) (OperationFnOutput, error)

// Caller lets an Effect or CallEffect request the same-tick invocation of
// another operation's function output, resolving CellRef handles without
// the operation knowing anything about the step driver itself.
type Caller interface {
	Call(ctx context.Context, opID int, args []SV, kwargs map[string]SV) (SV, error)
}

type callerKey struct{}

// WithCaller attaches a Caller to ctx for the duration of one tick.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext retrieves the Caller attached by WithCaller, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// ReasonKind classifies why one operation depends on another, used to break
// ties deterministically in the resolver's firing order.
type ReasonKind string

const (
	ReasonGlobal ReasonKind = "global"
	ReasonArg    ReasonKind = "arg"
	ReasonKwarg  ReasonKind = "kwarg"
	ReasonCall   ReasonKind = "call" // same-tick function-call splice
)

// Dependency is one edge of the dependency graph: consumer depends on
// producer for the stated reason.
type Dependency struct {
	Producer int
	Consumer int
	Reason   ReasonKind
}

// OperationNode is a compiled cell: an effect plus the input/output
// signatures the resolver and state layers need to wire it up.
type OperationNode struct {
	ID     int
	CellID string
	Name   string
	Kind   CellKind
	Inputs InputSignature
	Output OutputSignature
	Effect Effect

	// Call is only set when Output.Kind == OutputFunction: it lets another
	// operation invoke this one's function body directly, with args/kwargs
	// supplied by the call site, within the caller's own tick.
	Call CallEffect

	// Source is retained for debug rendering and error messages; never
	// re-parsed at runtime.
	Source string
}
