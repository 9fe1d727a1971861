// Package llm is the boundary to the external language model: a prompt goes
// in, text (or JSON matching a schema) comes out, or the call fails.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Schema names understood by the mock provider. Real providers treat them as
// opaque labels for the structured output format.
const (
	SchemaClassification = "letter_classification"
	SchemaBusinessFacts  = "business_facts"
)

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse = errors.New("empty response from model")

// Client issues single-turn completions.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one completion call. When Schema is nil the model answers in
// free text; otherwise it is asked for JSON conforming to Schema.
type Request struct {
	System      string
	Prompt      string
	SchemaName  string
	Schema      any
	MaxTokens   int
	Temperature *float64 // nil = model default
}

// Structured reports whether the request asks for JSON output.
func (r Request) Structured() bool {
	return r.Schema != nil
}

// CompleteJSON runs a structured request and decodes the answer into out.
func CompleteJSON(ctx context.Context, c Client, req Request, out any) error {
	raw, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripFences(raw)), out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.SchemaName, err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, which some
// OpenAI-compatible models add even in JSON mode.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// GenerateSchema reflects a JSON schema for T suitable for strict structured output.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}
