package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"eps-procurement/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

type AgentService interface {
	InterpretAllocation(ctx context.Context, naturalLanguage string, orderSummary string) (*core.AllocationProposal, error)
}

type Agent struct {
	client *openai.Client
}

func NewAgent(apiKey string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client}
}

// InterpretAllocation turns a natural-language budget instruction into a
// structured allocation proposal for one EPS order. The proposal is normalized
// and validated before it is returned; persisting it is the caller's decision.
func (a *Agent) InterpretAllocation(ctx context.Context, naturalLanguage string, orderSummary string) (*core.AllocationProposal, error) {
	prompt := fmt.Sprintf(`You are a procurement budget controller.
Your goal is to interpret a budget allocation instruction described in natural language and propose percentage shares of one EPS order across budget codes.
Rules:
1. Reference the exact order code from the order summary below.
2. Budget codes are 3-50 characters: letters, digits, hyphens, underscores.
3. Percentages must be exact decimal strings (e.g. "60.00") and sum to 100.
4. Provide a confidence score (0.0-1.0).
5. Explain your reasoning.

Order summary:
%s

Instruction: %s`, orderSummary, naturalLanguage)

	// Dynamically generate the JSON schema from the Go struct
	schemaStruct := generateSchema()
	schemaJSON, err := json.Marshal(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(shared.ChatModelGPT4o),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "budget_allocation_proposal",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A proposed split of one EPS order across budget codes"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var proposal core.AllocationProposal
	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}

	proposal.Normalize()
	if _, err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("proposal validation failed: %w", err)
	}

	return &proposal, nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v core.AllocationProposal
	return reflector.Reflect(v)
}
