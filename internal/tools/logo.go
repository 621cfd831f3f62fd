package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/tool"
)

// LogoArgs are the arguments of generate_logo.
type LogoArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=What the logo should depict" validate:"notblank"`
	Style  string `json:"style,omitempty" jsonschema:"description=Visual style such as minimal or flat or vintage"`
}

// LogoResult is returned to the model.
type LogoResult struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// Logo generates logo images.
type Logo struct {
	images llm.ImageGenerator
}

// NewLogo returns the generate_logo tool.
func NewLogo(images llm.ImageGenerator) Logo {
	return Logo{images: images}
}

// Definition implements tool.Tool.
func (Logo) Definition() tool.Definition {
	return tool.Definition{
		Name:        "generate_logo",
		Description: "Generate a logo image from a description and return its URL.",
		Parameters:  tool.SchemaFor(LogoArgs{}),
	}
}

// Execute implements tool.Tool.
func (l Logo) Execute(ctx context.Context, _ tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[LogoArgs](raw)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("A professional logo: %s. Clean vector design on a plain background, no text artifacts.", strings.TrimSpace(args.Prompt))
	if style := strings.TrimSpace(args.Style); style != "" {
		prompt += " Style: " + style + "."
	}
	url, err := l.images.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate logo: %w", err)
	}
	return LogoResult{URL: url, Prompt: prompt}, nil
}
