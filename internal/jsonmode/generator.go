// Package jsonmode coaxes schema-conforming JSON out of a chat model,
// re-prompting with the validation error when the first response does not
// conform.
package jsonmode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/corpusloom/corpusloom/internal/ollama"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// DefaultMaxRepairs is the number of re-prompts after a failed attempt
const DefaultMaxRepairs = 2

// systemPrompt pins the model to bare JSON output
const systemPrompt = "You are a strict JSON generator. Return ONLY valid JSON. " +
	"Do not include prose, explanations, or code fences."

// ErrNoJSON reports model output with no JSON candidate in it
var ErrNoJSON = errors.New("no JSON found in model output")

// ErrValidationFailed reports that every attempt, repairs included, produced
// output that did not conform to the schema.
var ErrValidationFailed = errors.New("output failed schema validation")

// ValidationFailedError carries the detail behind ErrValidationFailed.
// Output holds the last raw model text for diagnosis.
type ValidationFailedError struct {
	Attempts int
	Output   string
	Err      error
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrValidationFailed, e.Attempts, e.Err)
}

// Unwrap makes errors.Is match both ErrValidationFailed and the underlying
// validation error.
func (e *ValidationFailedError) Unwrap() []error { return []error{ErrValidationFailed, e.Err} }

// Chatter is the model call surface the generator needs. *ollama.Client
// satisfies it.
type Chatter interface {
	Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResult, error)
}

// Generator produces schema-validated JSON values from a chat model
type Generator struct {
	client     Chatter
	maxRepairs int
}

// NewGenerator creates a generator. maxRepairs < 0 selects DefaultMaxRepairs.
func NewGenerator(client Chatter, maxRepairs int) *Generator {
	if maxRepairs < 0 {
		maxRepairs = DefaultMaxRepairs
	}
	return &Generator{client: client, maxRepairs: maxRepairs}
}

// Generate prompts the model and returns the first response that validates
// against schemaJSON, decoded into maps/slices/primitives. Failed attempts
// are repaired by feeding the validation error back to the model, up to the
// configured repair count.
func (g *Generator) Generate(ctx context.Context, prompt string, schemaJSON []byte) (any, error) {
	schema, err := compileSchema(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	messages := []types.Message{
		{Role: types.RoleSystem, Content: systemPrompt},
		{Role: types.RoleUser, Content: buildPrompt(prompt, schemaJSON)},
	}

	attempts := g.maxRepairs + 1
	var lastOutput string
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		res, err := g.client.Chat(ctx, ollama.ChatRequest{Messages: messages, Format: "json"})
		if err != nil {
			return nil, err
		}

		lastOutput = res.Reply.Content
		value, err := validateOutput(schema, lastOutput)
		if err == nil {
			return value, nil
		}
		lastErr = err

		messages = append(messages, res.Reply, types.Message{
			Role:    types.RoleUser,
			Content: repairPrompt(err),
		})
	}

	return nil, &ValidationFailedError{Attempts: attempts, Output: lastOutput, Err: lastErr}
}

// GenerateInto runs Generate and unmarshals the conforming JSON into out
func (g *Generator) GenerateInto(ctx context.Context, prompt string, schemaJSON []byte, out any) error {
	value, err := g.Generate(ctx, prompt, schemaJSON)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("re-encode value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode into target: %w", err)
	}
	return nil
}

func compileSchema(schemaJSON []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func validateOutput(schema *jsonschema.Schema, output string) (any, error) {
	raw, ok := ExtractJSON(output)
	if !ok {
		return nil, ErrNoJSON
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, err
	}
	return value, nil
}

func buildPrompt(prompt string, schemaJSON []byte) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nRespond with a single JSON value matching this JSON Schema:\n")
	sb.Write(schemaJSON)
	return sb.String()
}

func repairPrompt(err error) string {
	return fmt.Sprintf(
		"The previous response was not valid. Validation error: %v. "+
			"Return ONLY the corrected JSON matching the schema.", err)
}
