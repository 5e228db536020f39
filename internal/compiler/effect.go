package compiler

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// makeCodeEffect turns a parsed statement list into the Effect a code
// cell's operation node runs each time it fires: every assignment is
// evaluated in turn against an environment seeded from the cell's bound
// globals and extended by each prior statement's result, using
// expr-lang/expr for the actual expression evaluation. A cell ending in a
// `def` never runs its function body here — the step driver overwrites
// this Effect's result with a handle to the op itself (see Call below).
func makeCodeEffect(stmts []statement) domain.Effect {
	return func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
		env := map[string]any{}
		if globals, ok := in.ObjectGet("globals"); ok {
			m, _, _ := globals.AsObject()
			for k, v := range m {
				bindEnvValue(ctx, env, k, v)
			}
		}
		last, err := runStatements(stmts, env)
		if err != nil {
			return domain.OperationFnOutput{}, err
		}
		return domain.OperationFnOutput{Output: domain.FromGo(last)}, nil
	}
}

// makeCallEffect builds the CallEffect for a cell whose final statement is
// a `def`: it re-resolves the cell's own bound globals from the snapshot
// the step driver supplies (the tick's starting snapshot), binds the
// call's args/kwargs over the function's params, and evaluates the
// function body — within the caller's own tick, never as a separate graph
// node.
func makeCallEffect(stmts []statement, sig domain.InputSignature) domain.CallEffect {
	fn := stmts[len(stmts)-1]
	preamble := stmts[:len(stmts)-1]
	return func(ctx context.Context, s domain.StateReader, args []domain.SV, kwargs map[string]domain.SV) (domain.OperationFnOutput, error) {
		env := map[string]any{}
		for _, item := range sig.Items {
			if item.Bucket != domain.BucketGlobal {
				continue
			}
			v, ok := s.OutputByName(item.Name)
			if !ok {
				continue
			}
			bindEnvValue(ctx, env, item.Name, v)
		}
		if _, err := runStatements(preamble, env); err != nil {
			return domain.OperationFnOutput{}, err
		}
		for i, p := range fn.params {
			if i < len(args) {
				bindEnvValue(ctx, env, p, args[i])
			}
		}
		for k, v := range kwargs {
			bindEnvValue(ctx, env, k, v)
		}
		program, err := expr.Compile(fn.exprSrc, expr.Env(env))
		if err != nil {
			return domain.OperationFnOutput{}, fmt.Errorf("compile %q: %w", fn.exprSrc, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return domain.OperationFnOutput{}, fmt.Errorf("eval %q: %w", fn.exprSrc, err)
		}
		return domain.OperationFnOutput{Output: domain.FromGo(out)}, nil
	}
}

// runStatements evaluates every non-function statement in order against
// env, binding each result under its own name, and returns the last value
// evaluated (nil if stmts is empty or every statement is a def, which the
// caller ignores for a function-terminal cell).
func runStatements(stmts []statement, env map[string]any) (any, error) {
	var last any
	for _, st := range stmts {
		if st.isFunc {
			continue
		}
		program, err := expr.Compile(st.exprSrc, expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", st.exprSrc, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("eval %q: %w", st.exprSrc, err)
		}
		env[st.name] = out
		last = out
	}
	return last, nil
}

// bindEnvValue binds name in env to v's plain-Go projection, except a
// function handle (SV::CellRef), which becomes a callable closure that
// dispatches back through the context's domain.Caller — letting a code
// cell invoke a function it received as an input exactly like one it
// referenced by name.
func bindEnvValue(ctx context.Context, env map[string]any, name string, v domain.SV) {
	if ref, ok := v.AsRef(); ok {
		env[name] = makeCallable(ctx, ref)
		return
	}
	env[name] = svToGo(v)
}

// makeCallable adapts a CellRef into a function expr-lang can invoke
// directly from cell source, e.g. `add(2, 3)`.
func makeCallable(ctx context.Context, ref domain.CellRef) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		caller, ok := domain.CallerFromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("no caller available to invoke operation %d", ref.OperationID)
		}
		svArgs := make([]domain.SV, len(args))
		for i, a := range args {
			svArgs[i] = domain.FromGo(a)
		}
		out, err := caller.Call(ctx, ref.OperationID, svArgs, nil)
		if err != nil {
			return nil, err
		}
		return svToGo(out), nil
	}
}

// svToGo unwraps an SV to the plain Go value expr-lang's environment wants.
func svToGo(v domain.SV) any {
	switch v.Kind() {
	case domain.SVBool:
		b, _ := v.AsBool()
		return b
	case domain.SVInt:
		i, _ := v.AsInt()
		return i
	case domain.SVFloat:
		f, _ := v.AsFloat()
		return f
	case domain.SVString:
		s, _ := v.AsString()
		return s
	case domain.SVBytes:
		b, _ := v.AsBytes()
		return b
	case domain.SVArray:
		arr, _ := v.AsArray()
		out := make([]any, len(arr))
		for i, it := range arr {
			out[i] = svToGo(it)
		}
		return out
	case domain.SVObject:
		m, _, _ := v.AsObject()
		out := make(map[string]any, len(m))
		for k, it := range m {
			out[k] = svToGo(it)
		}
		return out
	case domain.SVSet:
		set, _ := v.AsSet()
		out := make([]any, len(set))
		for i, it := range set {
			out[i] = svToGo(it)
		}
		return out
	default:
		return nil
	}
}
