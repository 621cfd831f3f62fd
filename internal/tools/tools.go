// Package tools holds the built-in tools exposed to chat models.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/domain/tool"
	"agentforge/chat-api/internal/infrastructure/sandbox"
	"agentforge/chat-api/internal/infrastructure/webreader"
)

// CodeRunner executes code remotely.
type CodeRunner interface {
	Run(ctx context.Context, req sandbox.RunRequest) (*sandbox.RunResponse, error)
}

// PageReader fetches a page's text.
type PageReader interface {
	Read(ctx context.Context, url string) (*webreader.Page, error)
}

// DocumentGenerator creates and updates documents.
type DocumentGenerator interface {
	Generate(ctx context.Context, params document.GenerateParams, emit stream.Emitter) (*document.Document, error)
}

// Deps are the collaborators of the built-in tools. Nil deps disable the
// tools that need them.
type Deps struct {
	Images    llm.ImageGenerator
	Sandbox   CodeRunner
	Web       PageReader
	Documents DocumentGenerator
}

// All returns every tool whose dependencies are present.
func All(deps Deps) []tool.Tool {
	out := []tool.Tool{
		Calculator{},
		Chart{},
		ColorPalette{},
	}
	if deps.Images != nil {
		out = append(out, Logo{images: deps.Images})
	}
	if deps.Sandbox != nil {
		out = append(out, ExecuteCode{runner: deps.Sandbox})
	}
	if deps.Web != nil {
		out = append(out, ReadWebpage{reader: deps.Web})
	}
	if deps.Documents != nil {
		out = append(out, CreateDocument{docs: deps.Documents}, UpdateDocument{docs: deps.Documents})
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// decodeArgs unmarshals and validates tool arguments against their validate tags.
func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return v, argsError(err)
	}
	return v, nil
}

func argsError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "notblank", "required":
		return fmt.Errorf("%s is required", field)
	case "min":
		return fmt.Errorf("%s needs at least %s", field, fe.Param())
	case "max":
		return fmt.Errorf("%s allows at most %s", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", field, fe.Tag())
	}
}
