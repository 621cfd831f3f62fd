// Package llmprovider implements llm.Backend on OpenAI-compatible APIs and
// resolves catalog model ids to backends.
package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"agentforge/chat-api/internal/domain/llm"
)

// OpenAIBackend talks to one upstream model through an OpenAI-compatible API.
type OpenAIBackend struct {
	client  *openai.Client
	model   string
	counter llm.TokenCounter
}

var _ llm.Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates a backend for upstreamModel.
func NewOpenAIBackend(client *openai.Client, upstreamModel string, counter llm.TokenCounter) *OpenAIBackend {
	if counter == nil {
		counter = llm.RuneCounter{}
	}
	return &OpenAIBackend{client: client, model: upstreamModel, counter: counter}
}

// Stream implements llm.Backend.
func (b *OpenAIBackend) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	chatReq := b.buildRequest(req)
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	s, err := b.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	return &openAIStream{
		stream:       s,
		counter:      b.counter,
		promptTokens: llm.EstimateMessagesTokenCount(b.counter, req.Messages),
	}, nil
}

// Complete implements llm.Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	resp, err := b.client.CreateChatCompletion(ctx, b.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}
	choice := resp.Choices[0]
	return &llm.Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (b *OpenAIBackend) buildRequest(req llm.Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = b.model
	}
	out := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if rf := req.ResponseFormat; rf != nil {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   rf.Name,
				Schema: rf.Schema,
				Strict: true,
			},
		}
	}
	return out
}

func toOpenAIMessages(msgs []llm.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

// openAIStream adapts the go-openai stream and estimates usage when the
// upstream never reports it.
type openAIStream struct {
	stream       *openai.ChatCompletionStream
	counter      llm.TokenCounter
	promptTokens int
	completion   strings.Builder
	sawUsage     bool
	done         bool
}

func (s *openAIStream) Recv() (*llm.Delta, error) {
	if s.done {
		return nil, io.EOF
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		if s.sawUsage {
			return nil, io.EOF
		}
		return &llm.Delta{Usage: &llm.Usage{
			PromptTokens:     s.promptTokens,
			CompletionTokens: s.counter.Count(s.completion.String()),
		}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive completion chunk: %w", err)
	}

	delta := &llm.Delta{}
	if resp.Usage != nil {
		s.sawUsage = true
		delta.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return delta, nil
	}

	choice := resp.Choices[0]
	delta.Content = choice.Delta.Content
	delta.Reasoning = choice.Delta.ReasoningContent
	delta.FinishReason = string(choice.FinishReason)
	s.completion.WriteString(choice.Delta.Content)
	for _, tc := range choice.Delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCallDelta{
			Index:     index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
		s.completion.WriteString(tc.Function.Arguments)
	}
	return delta, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// ImageBackend implements llm.ImageGenerator with the images API.
type ImageBackend struct {
	client *openai.Client
	model  string
	size   string
}

var _ llm.ImageGenerator = (*ImageBackend)(nil)

// NewImageBackend creates an image generator; empty model and size use the defaults.
func NewImageBackend(client *openai.Client, model, size string) *ImageBackend {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	return &ImageBackend{client: client, model: model, size: size}
}

// GenerateImage returns the URL of one generated image.
func (b *ImageBackend) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          b.model,
		N:              1,
		Size:           b.size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("image response contained no url")
	}
	return resp.Data[0].URL, nil
}
