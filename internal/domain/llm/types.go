// Package llm defines the model backend contract consumed by the chat core.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrModelNotFound is returned when a model id is not in the catalog.
var ErrModelNotFound = errors.New("model not found")

// Roles used in ChatMessage.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Backend generates completions for one resolved model.
type Backend interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Stream yields streaming deltas until io.EOF.
type Stream interface {
	Recv() (*Delta, error)
	Close() error
}

// Resolver maps opaque model ids to backends.
type Resolver interface {
	Resolve(ctx context.Context, modelID string) (Backend, ModelInfo, error)
	Models() []ModelInfo
}

// ImageGenerator produces images from prompts.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Request is a provider neutral completion request.
type Request struct {
	Model          string
	Messages       []ChatMessage
	Tools          []ToolDefinition
	ResponseFormat *ResponseFormat
	Temperature    *float32
	MaxTokens      int
}

// ChatMessage is one entry of the conversation history sent to the model.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall mirrors the OpenAI tool call format.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable function.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ResponseFormat constrains output to a JSON schema.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
}

// Delta is one streamed chunk.
type Delta struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCallDelta
	FinishReason string
	Usage        *Usage
}

// ToolCallDelta is a fragment of a tool call, keyed by Index.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Completion is a non-streaming result.
type Completion struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage contains token accounting metadata.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ModelInfo is the public description of a catalog model.
type ModelInfo struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Provider         string          `json:"provider"`
	UpstreamModel    string          `json:"-"`
	ContextLength    int             `json:"context_length,omitempty"`
	Reasoning        bool            `json:"reasoning"`
	Tier             string          `json:"tier"`
	PricePer1kInput  decimal.Decimal `json:"price_per_1k_input"`
	PricePer1kOutput decimal.Decimal `json:"price_per_1k_output"`
}

// Cost prices a usage report with the model's rates.
func (m ModelInfo) Cost(u Usage) decimal.Decimal {
	thousand := decimal.NewFromInt(1000)
	in := m.PricePer1kInput.Mul(decimal.NewFromInt(int64(u.PromptTokens))).Div(thousand)
	out := m.PricePer1kOutput.Mul(decimal.NewFromInt(int64(u.CompletionTokens))).Div(thousand)
	return in.Add(out)
}
