package compiler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// Compiler turns cell declarations into operation nodes. It holds the
// external clients cell effects need: an OpenAI client for prompt cells and
// a shared gin router that web cells register their routes on.
type Compiler struct {
	OpenAI *openai.Client
	Router *gin.Engine

	// Invoke lets a web cell's route handler reach the live instance's
	// current head snapshot and call a function cell by name, outside of
	// the tick loop. Set by the instance that owns this compiler; nil
	// until an instance has attached.
	Invoke func(ctx context.Context, functionName string, kwargs map[string]domain.SV) (domain.SV, error)
}

// New builds a Compiler. apiKey may be empty in tests that never fire a
// prompt cell.
func New(apiKey string) *Compiler {
	c := &Compiler{}
	if apiKey != "" {
		c.OpenAI = openai.NewClient(apiKey)
	}
	return c
}

// Compile dispatches to the per-kind compiler and returns the resulting
// operation node plus the free names it references (to be resolved into
// producer dependencies by the caller once every cell in the program has
// been compiled).
func (c *Compiler) Compile(cell domain.CellDecl) (*domain.OperationNode, []string, error) {
	switch cell.Kind {
	case domain.CellCode:
		return c.compileCode(cell)
	case domain.CellPrompt:
		return c.compilePrompt(cell)
	case domain.CellTemplate:
		return c.compileTemplate(cell)
	case domain.CellWeb:
		return c.compileWeb(cell)
	case domain.CellHTML:
		return c.compileHTML(cell)
	default:
		return nil, nil, fmt.Errorf("compiler: unknown cell kind %q", cell.Kind)
	}
}
