package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentforge/chat-api/internal/domain/tool"
	"agentforge/chat-api/internal/infrastructure/sandbox"
)

const maxCodeLen = 32 << 10

// ExecuteCodeArgs are the arguments of execute_code.
type ExecuteCodeArgs struct {
	Code     string `json:"code" jsonschema:"description=Source code to run" validate:"notblank"`
	Language string `json:"language" jsonschema:"enum=python,enum=javascript,enum=typescript,enum=go,enum=bash"`
}

// ExecuteCodeResult is returned to the model.
type ExecuteCodeResult struct {
	Status string `json:"status"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// ExecuteCode runs code in the sandbox service.
type ExecuteCode struct {
	runner CodeRunner
}

// NewExecuteCode returns the execute_code tool.
func NewExecuteCode(runner CodeRunner) ExecuteCode {
	return ExecuteCode{runner: runner}
}

// Definition implements tool.Tool.
func (ExecuteCode) Definition() tool.Definition {
	return tool.Definition{
		Name:        "execute_code",
		Description: "Run a snippet of code in an isolated sandbox and return its output.",
		Parameters:  tool.SchemaFor(ExecuteCodeArgs{}),
	}
}

// Execute implements tool.Tool.
func (e ExecuteCode) Execute(ctx context.Context, _ tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ExecuteCodeArgs](raw)
	if err != nil {
		return nil, err
	}
	if len(args.Code) > maxCodeLen {
		return nil, fmt.Errorf("code exceeds %d bytes", maxCodeLen)
	}
	lang := strings.ToLower(strings.TrimSpace(args.Language))
	if lang == "" {
		lang = "python"
	}

	out, err := e.runner.Run(ctx, sandbox.RunRequest{Code: args.Code, Language: lang})
	if err != nil {
		return nil, err
	}
	stderr := out.Stderr
	if out.Message != "" && stderr == "" {
		stderr = out.Message
	}
	return ExecuteCodeResult{Status: out.Status, Stdout: out.Stdout, Stderr: stderr}, nil
}
