package compiler

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// compilePrompt compiles a prompt cell: its source is a chat prompt template
// with `{{ name }}` placeholders; firing it renders the prompt and sends it
// to the chat completions API.
func (c *Compiler) compilePrompt(cell domain.CellDecl) (*domain.OperationNode, []string, error) {
	names := placeholderNames(cell.Source)
	sig := domain.InputSignature{}
	for _, n := range names {
		sig.Items = append(sig.Items, domain.InputItemConfig{Name: n, Bucket: domain.BucketGlobal, Kind: domain.SVString, Required: true})
	}

	model := openai.GPT4oMini
	if m, ok := cell.Config["model"].(string); ok && m != "" {
		model = m
	}

	op := &domain.OperationNode{
		Name:   cell.Name,
		CellID: cell.ID,
		Kind:   domain.CellPrompt,
		Inputs: sig,
		Output: domain.OutputSignature{Kind: domain.OutputValue},
		Source: cell.Source,
		Effect: func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
			values := collectStringValues(in, names)
			rendered := renderPlaceholders(cell.Source, values)

			if c.OpenAI == nil {
				return domain.OperationFnOutput{}, fmt.Errorf("prompt cell %s: no OpenAI client configured", cell.ID)
			}
			resp, err := c.OpenAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: rendered},
				},
			})
			if err != nil {
				return domain.OperationFnOutput{}, fmt.Errorf("prompt cell %s: chat completion: %w", cell.ID, err)
			}
			if len(resp.Choices) == 0 {
				return domain.OperationFnOutput{}, fmt.Errorf("prompt cell %s: empty completion", cell.ID)
			}
			return domain.OperationFnOutput{Output: domain.String(resp.Choices[0].Message.Content)}, nil
		},
	}
	return op, names, nil
}

func collectStringValues(in domain.SV, names []string) map[string]string {
	globals, _ := in.ObjectGet("globals")
	out := make(map[string]string, len(names))
	for _, n := range names {
		v, ok := globals.ObjectGet(n)
		if !ok {
			continue
		}
		if s, ok := v.AsString(); ok {
			out[n] = s
		}
	}
	return out
}
