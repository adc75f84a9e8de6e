package wstest

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	graphqlws "github.com/uswitch/graphql-ws/pkg/graphql/ws"
)

type Result struct {
	Data   interface{}                `json:"data"`
	Errors []gqlerrors.FormattedError `json:"errors,omitempty"`
}

// StreamFunc produces the root values of a subscription field. Closing the
// channel completes the subscription.
type StreamFunc func(ctx context.Context, args map[string]interface{}) (<-chan interface{}, error)

// Results replays a fixed list of results then completes.
func Results(results ...*Result) OnOperationFunc {
	return func(context.Context, graphqlws.OperationParams) (<-chan *Result, error) {
		ch := make(chan *Result, len(results))
		for _, result := range results {
			ch <- result
		}
		close(ch)

		return ch, nil
	}
}

func sendAndReturn(ch chan *Result, data interface{}, errors []gqlerrors.FormattedError) (<-chan *Result, error) {
	ch <- &Result{Data: data, Errors: errors}
	close(ch)

	return ch, nil
}

func operationFrom(doc *ast.Document, name string) (*ast.OperationDefinition, error) {
	var operation *ast.OperationDefinition

	for _, definition := range doc.Definitions {
		switch definition := definition.(type) {
		case *ast.OperationDefinition:
			if name != "" {
				if definition.Name != nil && definition.Name.Value == name {
					return definition, nil
				}
				continue
			}

			if operation != nil {
				return nil, fmt.Errorf("must provide operation name if query contains multiple operations")
			}
			operation = definition
		}
	}

	if operation == nil {
		if name != "" {
			return nil, fmt.Errorf("unknown operation named %q", name)
		}
		return nil, fmt.Errorf("didn't find an operation")
	}

	return operation, nil
}

// SchemaHandler executes operations against schema. Queries and mutations
// produce a single result; a subscription executes once for every value of
// the stream registered under its field name.
func SchemaHandler(schema graphql.Schema, streams map[string]StreamFunc) OnOperationFunc {
	return func(ctx context.Context, op graphqlws.OperationParams) (<-chan *Result, error) {
		ch := make(chan *Result, 1)

		source := source.NewSource(&source.Source{
			Body: []byte(op.Query),
			Name: "GraphQL request",
		})

		AST, err := parser.Parse(parser.ParseParams{Source: source})
		if err != nil {
			return sendAndReturn(ch, nil, gqlerrors.FormatErrors(err))
		}

		validationResult := graphql.ValidateDocument(&schema, AST, nil)

		if !validationResult.IsValid {
			return sendAndReturn(ch, nil, validationResult.Errors)
		}

		opDef, err := operationFrom(AST, op.OperationName)
		if err != nil {
			return sendAndReturn(ch, nil, gqlerrors.FormatErrors(err))
		}

		switch opDef.GetOperation() {
		case ast.OperationTypeQuery, ast.OperationTypeMutation:
			result := graphql.Execute(graphql.ExecuteParams{
				Schema:        schema,
				AST:           AST,
				OperationName: op.OperationName,
				Args:          op.Variables,
				Context:       ctx,
			})

			return sendAndReturn(ch, result.Data, result.Errors)
		case ast.OperationTypeSubscription:
			fieldNames := []string{}

			for _, selection := range opDef.SelectionSet.Selections {
				if field, ok := selection.(*ast.Field); ok {
					fieldNames = append(fieldNames, field.Name.Value)
				}
			}

			if len(fieldNames) != 1 {
				return sendAndReturn(ch, nil, gqlerrors.FormatErrors(fmt.Errorf("can only have one field")))
			}

			streamField, ok := streams[fieldNames[0]]
			if !ok {
				return sendAndReturn(ch, nil, gqlerrors.FormatErrors(fmt.Errorf("no stream field for %s", fieldNames[0])))
			}

			stream, err := streamField(ctx, op.Variables)
			if err != nil {
				return sendAndReturn(ch, nil, gqlerrors.FormatErrors(err))
			}

			go func() {
				defer close(ch)

				for {
					select {
					case <-ctx.Done():
						return
					case fieldValue, ok := <-stream:
						if !ok {
							return
						}

						result := graphql.Execute(graphql.ExecuteParams{
							Root: map[string]interface{}{
								fieldNames[0]: fieldValue,
							},
							Schema:        schema,
							AST:           AST,
							OperationName: op.OperationName,
							Args:          op.Variables,
							Context:       ctx,
						})

						select {
						case <-ctx.Done():
							return
						case ch <- &Result{Data: result.Data, Errors: result.Errors}:
						}
					}
				}
			}()

			return ch, nil
		default:
			return sendAndReturn(ch, nil, gqlerrors.FormatErrors(fmt.Errorf("unimplemented operation type: %s", opDef.GetOperation())))
		}
	}
}
