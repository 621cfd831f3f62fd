package tools

import (
	"context"
	"encoding/json"
	"strings"

	"agentforge/chat-api/internal/domain/tool"
)

// ReadWebpageArgs are the arguments of read_webpage.
type ReadWebpageArgs struct {
	URL string `json:"url" jsonschema:"description=Absolute http or https URL" validate:"notblank"`
}

// ReadWebpage fetches a page and returns its text.
type ReadWebpage struct {
	reader PageReader
}

// NewReadWebpage returns the read_webpage tool.
func NewReadWebpage(reader PageReader) ReadWebpage {
	return ReadWebpage{reader: reader}
}

// Definition implements tool.Tool.
func (ReadWebpage) Definition() tool.Definition {
	return tool.Definition{
		Name:        "read_webpage",
		Description: "Fetch a web page and return its title and readable text.",
		Parameters:  tool.SchemaFor(ReadWebpageArgs{}),
	}
}

// Execute implements tool.Tool.
func (r ReadWebpage) Execute(ctx context.Context, _ tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ReadWebpageArgs](raw)
	if err != nil {
		return nil, err
	}
	return r.reader.Read(ctx, strings.TrimSpace(args.URL))
}
