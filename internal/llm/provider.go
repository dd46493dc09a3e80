package llm

import (
	"context"
	"encoding/json"
)

// Provider generates a response for a prompt. When the request carries a
// Schema the response Content is JSON that validated against it.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation; single-shot prompts hold one user message.
	Messages []Message

	// Schema, when set, asks the provider for JSON conforming to it.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]; zero leaves the provider default.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies the schema for caching and provider-side naming,
	// e.g. "quiz-question".
	Name string

	Description string

	// Definition is the JSON Schema document.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserPrompt builds a single-message request.
func UserPrompt(prompt string, schema *Schema, maxTokens int) Request {
	return Request{
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		Schema:    schema,
		MaxTokens: maxTokens,
	}
}

// GenerateObject runs req and decodes the JSON content into a generic map.
func GenerateObject(ctx context.Context, p Provider, req Request) (map[string]any, error) {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(stripCodeFence(resp.Content), &out); err != nil {
		return nil, &ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return out, nil
}

// GenerateInto runs req and decodes the JSON content into v.
func GenerateInto(ctx context.Context, p Provider, req Request, v any) error {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(stripCodeFence(resp.Content), v); err != nil {
		return &ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return nil
}
