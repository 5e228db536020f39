package compiler

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// compileWeb compiles a web cell. Its source is a single header line:
//
//	METHOD /path function_name [param, ...]
//
// Firing the route invokes function_name synchronously against the
// instance's live graph, binds the listed params from the request (JSON
// body for POST/PUT/PATCH, query string otherwise), and responds with the
// JSON projection of whatever SV the function returned. The operation's own
// Effect never sees a request directly — it exists so the web cell shows up
// in the dependency graph and DOT rendering like any other cell.
func (c *Compiler) compileWeb(cell domain.CellDecl) (*domain.OperationNode, []string, error) {
	method, path, fnName, params, err := parseWebGrammar(cell.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("web cell %s: %w", cell.ID, err)
	}

	if c.Router != nil {
		c.Router.Handle(method, path, func(g *gin.Context) {
			kwargs, err := collectWebParams(g, method, params)
			if err != nil {
				g.JSON(400, gin.H{"error": err.Error()})
				return
			}
			if c.Invoke == nil {
				g.JSON(500, gin.H{"error": "web cell: no live instance attached"})
				return
			}
			out, err := c.Invoke(g.Request.Context(), fnName, kwargs)
			if err != nil {
				g.JSON(500, gin.H{"error": err.Error()})
				return
			}
			g.JSON(200, out.ToJSON())
		})
	}

	op := &domain.OperationNode{
		Name:   cell.Name,
		CellID: cell.ID,
		Kind:   domain.CellWeb,
		Inputs: domain.InputSignature{},
		Output: domain.OutputSignature{Kind: domain.OutputValue},
		Source: cell.Source,
		Effect: func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
			return domain.OperationFnOutput{Output: domain.Object(map[string]domain.SV{
				"method":   domain.String(method),
				"path":     domain.String(path),
				"function": domain.String(fnName),
			})}, nil
		},
	}
	return op, []string{fnName}, nil
}

// parseWebGrammar parses a web cell's header line:
//
//	METHOD /path function_name [param1, param2]
func parseWebGrammar(src string) (method, path, fnName string, params []string, err error) {
	line := strings.TrimSpace(strings.SplitN(src, "\n", 2)[0])
	bracket := strings.IndexByte(line, '[')
	paramSrc := ""
	head := line
	if bracket >= 0 {
		if !strings.HasSuffix(line, "]") {
			return "", "", "", nil, fmt.Errorf("expected closing ']' in header %q", line)
		}
		head = strings.TrimSpace(line[:bracket])
		paramSrc = line[bracket+1 : len(line)-1]
	}

	fields := strings.Fields(head)
	if len(fields) != 3 {
		return "", "", "", nil, fmt.Errorf("expected 'METHOD PATH function_name [param,...]', got %q", line)
	}
	method, path, fnName = strings.ToUpper(fields[0]), fields[1], fields[2]

	for _, p := range strings.Split(paramSrc, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			params = append(params, p)
		}
	}
	return method, path, fnName, params, nil
}

// collectWebParams reads the params a web cell's function needs from a gin
// request: the JSON body for a method that normally carries one, the query
// string otherwise.
func collectWebParams(g *gin.Context, method string, params []string) (map[string]domain.SV, error) {
	kwargs := make(map[string]domain.SV, len(params))
	switch method {
	case "POST", "PUT", "PATCH":
		var body map[string]any
		if err := g.ShouldBindJSON(&body); err != nil {
			return nil, fmt.Errorf("decode request body: %w", err)
		}
		for _, p := range params {
			if v, ok := body[p]; ok {
				// JSON has a single number type; a whole number binds as an
				// int, the same narrowing coerceQueryValue applies to queries.
				if f, isFloat := v.(float64); isFloat && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
					v = int64(f)
				}
				kwargs[p] = domain.FromGo(v)
			}
		}
	default:
		for _, p := range params {
			if v := g.Query(p); v != "" {
				kwargs[p] = domain.FromGo(coerceQueryValue(v))
			}
		}
	}
	return kwargs, nil
}

// coerceQueryValue turns a raw query string into the narrowest Go type it
// parses as, since a query string carries no type information of its own.
func coerceQueryValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
