package compiler

import (
	"context"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// compileTemplate compiles a template cell: pure text substitution, no
// external effect. Missing placeholders render empty.
func (c *Compiler) compileTemplate(cell domain.CellDecl) (*domain.OperationNode, []string, error) {
	names := placeholderNames(cell.Source)
	sig := domain.InputSignature{}
	for _, n := range names {
		sig.Items = append(sig.Items, domain.InputItemConfig{Name: n, Bucket: domain.BucketGlobal, Required: false})
	}

	op := &domain.OperationNode{
		Name:   cell.Name,
		CellID: cell.ID,
		Kind:   domain.CellTemplate,
		Inputs: sig,
		Output: domain.OutputSignature{Kind: domain.OutputValue},
		Source: cell.Source,
		Effect: func(ctx context.Context, s domain.StateReader, in domain.SV) (domain.OperationFnOutput, error) {
			values := collectStringValues(in, names)
			rendered := renderPlaceholders(cell.Source, values)
			return domain.OperationFnOutput{Output: domain.String(rendered)}, nil
		},
	}
	return op, names, nil
}
