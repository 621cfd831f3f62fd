package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/domain/tool"
)

type generation struct {
	backend llm.Backend
	model   llm.ModelInfo
	request llm.Request
	send    func(kind stream.DataKind, content any) error
}

type handler interface {
	createPrompt() string
	generate(ctx context.Context, g generation) (string, map[string]string, error)
}

const textPrompt = "Write about the given topic. Markdown is supported. Use headings wherever appropriate."

const codePrompt = `You are a code generator that creates self-contained, executable code snippets.
Each snippet should be complete and runnable on its own, print its output, be concise
and avoid external dependencies. Return the code in the "code" field.`

const reactPrompt = `You are a React component generator. Produce one self-contained functional component
styled with inline styles or Tailwind classes, exported as default. Return its name in
"componentName" and its source in "code".`

const sheetPrompt = "You are a spreadsheet creation assistant. Create a spreadsheet in csv format based on the given prompt. The data should contain meaningful column headers and data. Return it in the \"csv\" field."

func updatePrompt(current string, kind Kind) string {
	switch kind {
	case KindCode:
		return "Improve the following code snippet based on the given prompt.\n\n" + current
	case KindReact:
		return "Improve the following React component based on the given prompt. Keep the same component name unless asked otherwise.\n\n" + current
	case KindSheet:
		return "Improve the following spreadsheet based on the given prompt.\n\n" + current
	default:
		return "Improve the following contents of the document based on the given prompt.\n\n" + current
	}
}

type textHandler struct{}

func (textHandler) createPrompt() string { return textPrompt }

func (textHandler) generate(ctx context.Context, g generation) (string, map[string]string, error) {
	s, err := g.backend.Stream(ctx, g.request)
	if err != nil {
		return "", nil, err
	}
	defer s.Close()

	var content strings.Builder
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return content.String(), nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		if delta == nil || delta.Content == "" {
			continue
		}
		content.WriteString(delta.Content)
		if err := g.send(stream.DataTextDelta, delta.Content); err != nil {
			return "", nil, err
		}
	}
}

type codeOutput struct {
	Code string `json:"code" jsonschema:"description=The complete source code"`
}

type reactOutput struct {
	ComponentName string `json:"componentName" jsonschema:"description=Name of the exported component"`
	Code          string `json:"code" jsonschema:"description=Source of the component"`
}

type sheetOutput struct {
	CSV string `json:"csv" jsonschema:"description=CSV data"`
}

var (
	codeSchema  = tool.SchemaFor(&codeOutput{})
	reactSchema = tool.SchemaFor(&reactOutput{})
	sheetSchema = tool.SchemaFor(&sheetOutput{})
)

// streamObject streams a schema constrained completion and calls onObject with
// every prefix of the output that decodes once completed.
func streamObject(ctx context.Context, g generation, name string, schema json.RawMessage, onObject func(raw []byte) error) error {
	req := g.request
	req.ResponseFormat = &llm.ResponseFormat{Name: name, Schema: schema}
	s, err := g.backend.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer s.Close()

	var buf strings.Builder
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if delta == nil || delta.Content == "" {
			continue
		}
		buf.WriteString(delta.Content)
		completed := completePartialJSON(buf.String())
		if !json.Valid([]byte(completed)) {
			continue
		}
		if err := onObject([]byte(completed)); err != nil {
			return err
		}
	}

	if !json.Valid([]byte(buf.String())) {
		return fmt.Errorf("model returned invalid %s object", name)
	}
	return nil
}

type codeHandler struct{}

func (codeHandler) createPrompt() string { return codePrompt }

func (codeHandler) generate(ctx context.Context, g generation) (string, map[string]string, error) {
	var last codeOutput
	err := streamObject(ctx, g, "code", codeSchema, func(raw []byte) error {
		var out codeOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		if out.Code == last.Code {
			return nil
		}
		last = out
		return g.send(stream.DataCodeDelta, out.Code)
	})
	return last.Code, nil, err
}

type reactHandler struct{}

func (reactHandler) createPrompt() string { return reactPrompt }

func (reactHandler) generate(ctx context.Context, g generation) (string, map[string]string, error) {
	var last reactOutput
	err := streamObject(ctx, g, "react_component", reactSchema, func(raw []byte) error {
		var out reactOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		if out.ComponentName != last.ComponentName && out.ComponentName != "" {
			if err := g.send(stream.DataMetadataUpdate, map[string]string{"componentName": out.ComponentName}); err != nil {
				return err
			}
		}
		changed := out.Code != last.Code
		last = out
		if !changed {
			return nil
		}
		return g.send(stream.DataReactDelta, out)
	})
	var metadata map[string]string
	if last.ComponentName != "" {
		metadata = map[string]string{"componentName": last.ComponentName}
	}
	return last.Code, metadata, err
}

type sheetHandler struct{}

func (sheetHandler) createPrompt() string { return sheetPrompt }

func (sheetHandler) generate(ctx context.Context, g generation) (string, map[string]string, error) {
	var last sheetOutput
	err := streamObject(ctx, g, "sheet", sheetSchema, func(raw []byte) error {
		var out sheetOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		if out.CSV == last.CSV {
			return nil
		}
		last = out
		return g.send(stream.DataSheetDelta, out.CSV)
	})
	return last.CSV, nil, err
}
