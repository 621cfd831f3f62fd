// Package sandbox talks to the remote code execution service.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDisabled is returned when no sandbox URL is configured.
var ErrDisabled = errors.New("code sandbox is not configured")

// RunRequest is the body posted to /run_code.
type RunRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type runResult struct {
	Status        string  `json:"status"`
	ExecutionTime float64 `json:"execution_time"`
	ReturnCode    int     `json:"return_code"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
}

type apiResponse struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	RunResult *runResult `json:"run_result"`
}

// RunResponse is the normalized outcome of a run.
type RunResponse struct {
	Status     string `json:"status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returnCode"`
	DurationMS int    `json:"durationMs"`
	Message    string `json:"message,omitempty"`
}

// Client posts code to the sandbox service.
type Client struct {
	http *resty.Client
}

// NewClient returns nil when baseURL is empty.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", "chat-api-sandbox/1.0").
			SetTimeout(timeout),
	}
}

// Enabled reports whether the client can run code.
func (c *Client) Enabled() bool {
	return c != nil && c.http != nil
}

// Run executes code and maps the service response.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var body apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&body).
		Post("/run_code")
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sandbox error (%d): %s", resp.StatusCode(), resp.String())
	}

	out := &RunResponse{Status: body.Status}
	if body.RunResult != nil {
		out.Stdout = body.RunResult.Stdout
		out.Stderr = body.RunResult.Stderr
		out.ReturnCode = body.RunResult.ReturnCode
		out.DurationMS = int(body.RunResult.ExecutionTime * 1000)
	}
	if body.Status != "Success" {
		out.Message = body.Message
	}
	return out, nil
}
