// Package chatclient is a Go client for the chat API.
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// APIError is a non-2xx JSON response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Code       string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api: %s (%s, status %d)", e.Message, e.Type, e.StatusCode)
}

// ChatRequest starts a turn.
type ChatRequest struct {
	ChatID       string            `json:"id"`
	Model        string            `json:"model,omitempty"`
	Messages     []message.Message `json:"messages"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	AgentID      *string           `json:"agentId,omitempty"`
	Visibility   chat.Visibility   `json:"visibility,omitempty"`
}

// ChatWithMessages is a chat and its persisted messages.
type ChatWithMessages struct {
	Chat     chat.Chat         `json:"chat"`
	Messages []message.Message `json:"messages"`
}

// Credits is the caller's balance and recent ledger entries.
type Credits struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
	Entries []billing.Entry `json:"entries"`
}

type list[T any] struct {
	Data []T `json:"data"`
}

type Client struct {
	http   *resty.Client
	stream *resty.Client
}

// New creates a client for baseURL authenticating with token. timeout bounds
// plain requests; streams run until their context ends.
func New(baseURL, token string, timeout time.Duration) *Client {
	build := func() *resty.Client {
		c := resty.New().SetBaseURL(baseURL)
		if token != "" {
			c.SetAuthToken(token)
		}
		return c
	}
	return &Client{
		http: build().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetError(&platformerrors.HTTPErrorResponse{}),
		stream: build(),
	}
}

// ChatStream is an open turn stream.
type ChatStream struct {
	ChatID string
	body   io.ReadCloser
	dec    *stream.Decoder
}

// Next returns the next event, io.EOF at the end of the stream.
func (s *ChatStream) Next() (stream.Event, error) {
	return s.dec.Next()
}

// Close releases the connection.
func (s *ChatStream) Close() error {
	return s.body.Close()
}

// StreamChat posts a turn and returns its event stream. Rejections before
// streaming are returned as *APIError.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetBody(req).
		SetDoNotParseResponse(true).
		Post("/v1/chat")
	if err != nil {
		return nil, fmt.Errorf("post chat: %w", err)
	}
	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer body.Close()
		raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		return nil, decodeAPIError(resp.StatusCode(), raw)
	}
	return &ChatStream{
		ChatID: resp.Header().Get("X-Chat-Id"),
		body:   body,
		dec:    stream.NewDecoder(body),
	}, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*ChatWithMessages, error) {
	var out ChatWithMessages
	if err := c.get(ctx, "/v1/chats/"+chatID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	var out list[llm.ModelInfo]
	if err := c.get(ctx, "/v1/models", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SelectModel persists the caller's model choice.
func (c *Client) SelectModel(ctx context.Context, modelID string) (*llm.ModelInfo, error) {
	var out llm.ModelInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"model": modelID}).
		SetResult(&out).
		Put("/v1/me/model")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Credits(ctx context.Context) (*Credits, error) {
	var out Credits
	if err := c.get(ctx, "/v1/me/credits", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DocumentDiff(ctx context.Context, documentID string, version int) (*document.Diff, error) {
	var out document.Diff
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("version", strconv.Itoa(version)).
		SetResult(&out).
		Get("/v1/documents/" + documentID + "/diff")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	if body, ok := resp.Error().(*platformerrors.HTTPErrorResponse); ok && body.Error != nil {
		return apiError(resp.StatusCode(), body)
	}
	return decodeAPIError(resp.StatusCode(), resp.Body())
}

func decodeAPIError(status int, raw []byte) error {
	var body platformerrors.HTTPErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == nil {
		return &APIError{StatusCode: status, Message: http.StatusText(status)}
	}
	return apiError(status, &body)
}

func apiError(status int, body *platformerrors.HTTPErrorResponse) *APIError {
	return &APIError{
		StatusCode: status,
		Type:       body.Error.Type,
		Message:    body.Error.Message,
		Code:       body.Error.Code,
		RequestID:  body.Error.RequestID,
	}
}
