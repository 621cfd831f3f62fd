package stream_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/stream"
)

func encodeAll(t *testing.T, events []stream.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := stream.NewEncoder(&buf)
	for _, ev := range events {
		require.NoError(t, enc.Encode(ev))
	}
	return buf.Bytes()
}

func decodeAll(t *testing.T, r io.Reader) ([]stream.Event, error) {
	t.Helper()
	dec := stream.NewDecoder(r)
	var out []stream.Event
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, ev)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	events := []stream.Event{
		stream.Start{MessageID: "msg_1"},
		stream.ReasoningDelta{Text: "thinking"},
		stream.TextDelta{Text: "Hello"},
		stream.TextDelta{Text: ", \"world\"\nnext line"},
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{"expression":"1+1"}`)},
		stream.ToolResult{ToolCallID: "a", ToolName: "calculator", Result: json.RawMessage(`{"result":2}`)},
		stream.ToolResult{ToolCallID: "b", Result: json.RawMessage(`{"error":"boom"}`), IsError: true},
		stream.Data{Kind: stream.DataReactDelta, Content: json.RawMessage(`{"code":"x","componentName":"App"}`)},
		stream.Data{Kind: stream.DataClear},
		stream.Finish{FinishReason: stream.FinishStop, Usage: &stream.Usage{PromptTokens: 3, CompletionTokens: 7}},
	}

	decoded, err := decodeAll(t, bytes.NewReader(encodeAll(t, events)))
	require.NoError(t, err)
	assert.Equal(t, events, decoded)
}

func TestCodec_ErrorEventRoundTrip(t *testing.T) {
	events := []stream.Event{
		stream.TextDelta{Text: "partial"},
		stream.Error{Message: "upstream failed", Code: stream.CodeGenerationFailed},
	}

	decoded, err := decodeAll(t, bytes.NewReader(encodeAll(t, events)))
	require.NoError(t, err)
	assert.Equal(t, events, decoded)
}

func TestDecoder_MalformedLines(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing separator", body: "0\"hi\"\n"},
		{name: "unknown code", body: "z:{}\n"},
		{name: "invalid json", body: "0:\"unterminated\n"},
		{name: "unknown data type", body: `2:{"type":"mystery","content":1}` + "\n"},
		{name: "tool call without id", body: `9:{"toolName":"calc","args":{}}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := "0:\"before\"\n" + tt.body + "0:\"after\"\n"
			decoded, err := decodeAll(t, strings.NewReader(body))
			require.NoError(t, err)
			require.Len(t, decoded, 2)
			assert.Equal(t, stream.TextDelta{Text: "before"}, decoded[0])

			errEv, ok := decoded[1].(stream.Error)
			require.True(t, ok, "expected terminal error event, got %T", decoded[1])
			assert.Equal(t, stream.CodeWireCorruption, errEv.Code)
		})
	}
}

func TestDecoder_UnexpectedEOF(t *testing.T) {
	body := "0:\"a\"\n0:\"b\"\n0:\"c\"\n"
	dec := stream.NewDecoder(strings.NewReader(body))

	for i := 0; i < 3; i++ {
		_, err := dec.Next()
		require.NoError(t, err)
	}
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecoder_StopsAfterFinish(t *testing.T) {
	body := "d:{\"finishReason\":\"stop\"}\n0:\"ignored\"\n"
	dec := stream.NewDecoder(strings.NewReader(body))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, stream.EventFinish, ev.Type())

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMarshalLine_RejectsUnknownDataKind(t *testing.T) {
	_, err := stream.MarshalLine(stream.Data{Kind: "nope"})
	assert.ErrorIs(t, err, stream.ErrUnknownEvent)

	_, err = stream.NewData("nope", nil)
	assert.ErrorIs(t, err, stream.ErrUnknownEvent)
}

func TestMarshalLine_RejectsIncompleteToolEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   stream.Event
	}{
		{name: "tool-call without id", ev: stream.ToolCall{ToolName: "calculator"}},
		{name: "tool-call without name", ev: stream.ToolCall{ToolCallID: "c1", Args: json.RawMessage(`{}`)}},
		{name: "tool-result without id", ev: stream.ToolResult{ToolName: "calculator"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stream.MarshalLine(tt.ev)
			assert.Error(t, err)
		})
	}
}

func TestPipe_ManyProducersOneConsumer(t *testing.T) {
	pipe := stream.NewPipe(4)
	var buf bytes.Buffer
	ctx := context.Background()

	drained := make(chan error, 1)
	go func() { drained <- pipe.Drain(ctx, stream.NewEncoder(&buf)) }()

	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, pipe.Emit(ctx, stream.TextDelta{Text: "x"}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, pipe.Emit(ctx, stream.Finish{FinishReason: stream.FinishStop}))
	pipe.CloseSend()
	require.NoError(t, <-drained)

	decoded, err := decodeAll(t, &buf)
	require.NoError(t, err)
	assert.Len(t, decoded, 101)
	assert.Equal(t, stream.EventFinish, decoded[100].Type())

	assert.ErrorIs(t, pipe.Emit(ctx, stream.TextDelta{Text: "late"}), stream.ErrClosed)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client gone") }

func TestPipe_ConsumerFailureClosesProducers(t *testing.T) {
	pipe := stream.NewPipe(0)
	ctx := context.Background()

	drained := make(chan error, 1)
	go func() { drained <- pipe.Drain(ctx, stream.NewEncoder(failingWriter{})) }()

	require.NoError(t, pipe.Emit(ctx, stream.TextDelta{Text: "first"}))
	require.Error(t, <-drained)

	assert.ErrorIs(t, pipe.Emit(ctx, stream.TextDelta{Text: "second"}), stream.ErrClosed)
	assert.Error(t, pipe.Err())
}
