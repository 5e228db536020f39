package compiler

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// statement is one parsed line of a code cell: either a plain assignment
// (`name = expr`) or a function definition (`def name(params): expr`).
type statement struct {
	name     string
	params   []string
	exprSrc  string
	isFunc   bool
}

// splitStatements breaks a code cell's source into newline/`;`-separated
// statements. This is the one piece of the compiler with no pack library to
// lean on — no example repo implements a statement-oriented toy language —
// so it is a small hand-rolled scanner; see DESIGN.md.
func splitStatements(src string) []string {
	var out []string
	for _, line := range strings.Split(src, "\n") {
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out
}

func parseStatement(raw string) (statement, error) {
	if strings.HasPrefix(raw, "def ") {
		rest := strings.TrimSpace(strings.TrimPrefix(raw, "def "))
		colon := strings.Index(rest, ":")
		if colon < 0 {
			return statement{}, fmt.Errorf("function statement missing ':' body: %q", raw)
		}
		head := strings.TrimSpace(rest[:colon])
		body := strings.TrimSpace(rest[colon+1:])
		open := strings.Index(head, "(")
		close := strings.LastIndex(head, ")")
		if open < 0 || close < open {
			return statement{}, fmt.Errorf("function statement missing parameter list: %q", raw)
		}
		name := strings.TrimSpace(head[:open])
		paramList := strings.TrimSpace(head[open+1 : close])
		var params []string
		if paramList != "" {
			for _, p := range strings.Split(paramList, ",") {
				params = append(params, strings.TrimSpace(p))
			}
		}
		return statement{name: name, params: params, exprSrc: body, isFunc: true}, nil
	}

	eq := strings.Index(raw, "=")
	if eq < 0 {
		return statement{}, fmt.Errorf("statement is neither an assignment nor a def: %q", raw)
	}
	name := strings.TrimSpace(raw[:eq])
	exprSrc := strings.TrimSpace(raw[eq+1:])
	if name == "" {
		return statement{}, fmt.Errorf("assignment missing a target name: %q", raw)
	}
	return statement{name: name, exprSrc: exprSrc}, nil
}

// freeIdentifiers walks the expr-lang AST of a parsed expression and
// returns every identifier referenced that isn't in bound.
func freeIdentifiers(exprSrc string, bound map[string]bool) ([]string, error) {
	tree, err := parser.Parse(exprSrc)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	collector := identVisitor{onIdent: func(name string) {
		if bound[name] || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}}
	ast.Walk(&tree.Node, collector)
	return names, nil
}

// identVisitor implements ast.Visitor, invoking onIdent for every
// identifier node encountered that is not a builtin function call name.
type identVisitor struct {
	onIdent func(name string)
}

// Visit records every bare identifier reference. For a call expression like
// `foo(x)`, ast.Walk also visits the callee as its own IdentifierNode, so a
// call to another cell's function output is picked up here without special
// casing CallNode.
func (v identVisitor) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		v.onIdent(n.Value)
	}
}

// compileCode compiles a code cell into a single OperationNode: its
// statements run in order each time it fires, the value of the last
// assignment is the cell's output (a cell ending in a `def` publishes a
// function handle instead), and that output is published under the cell's
// name. It also returns the free names the statements reference.
func (c *Compiler) compileCode(cell domain.CellDecl) (*domain.OperationNode, []string, error) {
	stmts := splitStatements(cell.Source)
	if len(stmts) == 0 {
		return nil, nil, fmt.Errorf("code cell %s has no statements", cell.ID)
	}

	bound := map[string]bool{}
	var allFree []string
	var parsed []statement
	for _, raw := range stmts {
		st, err := parseStatement(raw)
		if err != nil {
			return nil, nil, err
		}
		localBound := map[string]bool{}
		for k := range bound {
			localBound[k] = true
		}
		for _, p := range st.params {
			localBound[p] = true
		}
		free, err := freeIdentifiers(st.exprSrc, localBound)
		if err != nil {
			return nil, nil, fmt.Errorf("code cell %s statement %q: %w", cell.ID, raw, err)
		}
		allFree = append(allFree, free...)
		bound[st.name] = true
		parsed = append(parsed, st)
	}

	sig := domain.InputSignature{}
	for _, name := range dedupe(allFree) {
		sig.Items = append(sig.Items, domain.InputItemConfig{Name: name, Bucket: domain.BucketGlobal, Required: true})
	}

	last := parsed[len(parsed)-1]
	out := domain.OutputSignature{Kind: domain.OutputValue}
	if last.isFunc {
		params := domain.InputSignature{}
		for _, p := range last.params {
			params.Items = append(params.Items, domain.InputItemConfig{Name: p, Bucket: domain.BucketArg, Required: true})
		}
		out = domain.OutputSignature{Kind: domain.OutputFunction, Params: params}
	}

	op := &domain.OperationNode{
		Name:   cell.Name,
		CellID: cell.ID,
		Kind:   domain.CellCode,
		Inputs: sig,
		Output: out,
		Source: cell.Source,
		Effect: makeCodeEffect(parsed),
	}
	if last.isFunc {
		op.Call = makeCallEffect(parsed, sig)
	}
	return op, dedupe(allFree), nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
