package compiler

import (
	"fmt"

	"github.com/lucid-cells/cellrun/internal/domain"
	"github.com/lucid-cells/cellrun/internal/resolver"
)

// CompileProgram compiles every cell in a program, assigns each a stable
// numeric operation ID, and resolves each operation's free-name references
// into producer/consumer dependency edges by looking up the producing
// cell's declared name. A compile failure on one cell latches that cell's
// NeedsUpdate flag (mutating the passed-in slice) and is returned
// immediately — the caller decides whether to keep the previous program's
// graph live per spec's compile-error handling.
func CompileProgram(c *Compiler, cells []domain.CellDecl) (*resolver.Graph, error) {
	ops := make([]*domain.OperationNode, 0, len(cells))
	freeByOp := map[int][]string{}
	nameToID := map[string]int{}

	for i := range cells {
		op, free, err := c.Compile(cells[i])
		if err != nil {
			cells[i].NeedsUpdate = true
			return nil, domain.NewCompileError(fmt.Sprintf("cell %s", cells[i].ID), err)
		}
		cells[i].NeedsUpdate = false
		op.ID = i + 1
		ops = append(ops, op)
		freeByOp[op.ID] = free
		if op.Name != "" {
			nameToID[op.Name] = op.ID
		}
	}

	functionOps := map[int]bool{}
	for _, op := range ops {
		if op.Output.Kind == domain.OutputFunction {
			functionOps[op.ID] = true
		}
	}

	var deps []domain.Dependency
	for _, op := range ops {
		for _, name := range freeByOp[op.ID] {
			producer, ok := nameToID[name]
			if !ok {
				continue // unresolved free name: an external/global input, not a cell dependency
			}
			if producer == op.ID {
				continue // self-reference, e.g. a recursive function def
			}
			reason := domain.ReasonGlobal
			if functionOps[producer] {
				// The consumer calls this producer's function output
				// same-tick rather than reading a value it waits a hop
				// for; still wired as a dependency so the resolver knows
				// the consumer can't fire before the function exists.
				reason = domain.ReasonCall
			}
			deps = append(deps, domain.Dependency{Producer: producer, Consumer: op.ID, Reason: reason})
		}
	}

	return resolver.NewGraph(ops, deps), nil
}
