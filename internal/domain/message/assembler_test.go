package message_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/domain/stream"
)

func applyAll(t *testing.T, a *message.Assembler, events ...stream.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, a.Apply(ev))
	}
}

func TestAssembler_TextDeltasConcatenate(t *testing.T) {
	tests := []struct {
		name   string
		deltas []string
	}{
		{name: "single", deltas: []string{"hello"}},
		{name: "many", deltas: []string{"The ", "quick ", "brown ", "fox"}},
		{name: "empty chunks", deltas: []string{"", "a", "", "b"}},
		{name: "unicode", deltas: []string{"héllo ", "wörld ", "🚀"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := message.NewAssembler("m1", "c1")
			for _, d := range tt.deltas {
				require.NoError(t, a.Apply(stream.TextDelta{Text: d}))
			}

			msg := a.Snapshot()
			require.Len(t, msg.Parts, 1)
			assert.Equal(t, strings.Join(tt.deltas, ""), msg.Parts[0].(*message.TextPart).Text)
			assert.Equal(t, message.StatusStreaming, msg.Status)
		})
	}
}

func TestAssembler_ToolCallOpensNewTextPart(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a,
		stream.TextDelta{Text: "Let me check. "},
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{}`)},
		stream.TextDelta{Text: "Meanwhile"},
		stream.TextDelta{Text: "..."},
	)

	msg := a.Snapshot()
	require.Len(t, msg.Parts, 3)
	assert.Equal(t, "Let me check. ", msg.Parts[0].(*message.TextPart).Text)
	assert.Equal(t, message.InvocationCall, msg.Parts[1].(*message.ToolInvocationPart).State)
	assert.Equal(t, "Meanwhile...", msg.Parts[2].(*message.TextPart).Text)
}

func TestAssembler_ResultsMatchedByIDInAnyOrder(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a,
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{"expression":"1+1"}`)},
		stream.ToolCall{ToolCallID: "b", ToolName: "read_webpage", Args: json.RawMessage(`{"url":"https://example.com"}`)},
		stream.TextDelta{Text: "working"},
		stream.ToolResult{ToolCallID: "b", Result: json.RawMessage(`{"title":"Example"}`)},
		stream.ToolResult{ToolCallID: "a", Result: json.RawMessage(`{"result":2}`)},
	)

	snap := a.Snapshot()
	tools := snap.ToolInvocations()
	require.Len(t, tools, 2)

	assert.Equal(t, "a", tools[0].ToolCallID)
	assert.Equal(t, message.InvocationResult, tools[0].State)
	assert.JSONEq(t, `{"result":2}`, string(tools[0].Result))

	assert.Equal(t, "b", tools[1].ToolCallID)
	assert.Equal(t, message.InvocationResult, tools[1].State)
	assert.JSONEq(t, `{"title":"Example"}`, string(tools[1].Result))
}

func TestAssembler_CallStateBeforeResult(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a, stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{}`)})

	snap := a.Snapshot()
	part := snap.ToolInvocations()[0]
	assert.Equal(t, message.InvocationCall, part.State)
	assert.Nil(t, part.Result)
}

func TestAssembler_UnknownResultIsDropped(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a,
		stream.TextDelta{Text: "hi"},
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{}`)},
	)
	before := a.Snapshot()

	require.NotPanics(t, func() {
		require.NoError(t, a.Apply(stream.ToolResult{ToolCallID: "zzz", Result: json.RawMessage(`1`)}))
	})

	assert.Equal(t, before.Parts, a.Snapshot().Parts)
	diags := a.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, stream.EventToolResult, diags[0].Event)
	assert.Contains(t, diags[0].Reason, "zzz")
}

func TestAssembler_SecondResultDoesNotTransitionAgain(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a,
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{}`)},
		stream.ToolResult{ToolCallID: "a", Result: json.RawMessage(`{"result":1}`)},
		stream.ToolResult{ToolCallID: "a", Result: json.RawMessage(`{"result":2}`)},
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{}`)},
	)

	snap := a.Snapshot()
	tools := snap.ToolInvocations()
	require.Len(t, tools, 1)
	assert.JSONEq(t, `{"result":1}`, string(tools[0].Result))
	assert.Len(t, a.Diagnostics(), 2)
}

func TestAssembler_ToolErrorThenTextContinues(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a,
		stream.ToolCall{ToolCallID: "a", ToolName: "execute_code", Args: json.RawMessage(`{}`)},
		stream.ToolResult{ToolCallID: "a", Result: json.RawMessage(`{"error":"sandbox exploded"}`), IsError: true},
		stream.TextDelta{Text: "The tool failed, "},
		stream.TextDelta{Text: "sorry."},
		stream.Finish{FinishReason: stream.FinishStop},
	)

	msg := a.Snapshot()
	require.Len(t, msg.Parts, 2)
	tool := msg.Parts[0].(*message.ToolInvocationPart)
	assert.Equal(t, message.InvocationResult, tool.State)
	assert.True(t, tool.IsError)
	assert.JSONEq(t, `{"error":"sandbox exploded"}`, string(tool.Result))
	assert.Equal(t, "The tool failed, sorry.", msg.Parts[1].(*message.TextPart).Text)
	assert.Equal(t, message.StatusDone, msg.Status)
}

func TestAssembler_FinishSeals(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a, stream.TextDelta{Text: "done"}, stream.Finish{FinishReason: stream.FinishStop})

	assert.ErrorIs(t, a.Apply(stream.TextDelta{Text: " more"}), message.ErrSealed)
	msg := a.Snapshot()
	assert.Equal(t, "done", msg.Text())
	assert.True(t, msg.Status.Final())
}

func TestAssembler_InterruptedAfterThreeOfFiveDeltas(t *testing.T) {
	var buf bytes.Buffer
	enc := stream.NewEncoder(&buf)
	deltas := []string{"one ", "two ", "three ", "four ", "five"}
	for _, d := range deltas {
		require.NoError(t, enc.Encode(stream.TextDelta{Text: d}))
	}

	// Cut the body after the third line.
	lines := bytes.SplitAfter(buf.Bytes(), []byte("\n"))
	truncated := bytes.Join(lines[:3], nil)

	a := message.NewAssembler("m1", "c1")
	msg, err := a.Consume(context.Background(), stream.NewDecoder(bytes.NewReader(truncated)))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Equal(t, "one two three ", msg.Text())
	assert.Equal(t, message.StatusIncomplete, msg.Status)
	assert.False(t, msg.Status.Final())
}

func TestAssembler_WireCorruptionFails(t *testing.T) {
	body := "0:\"partial\"\n0:garbage\n"

	a := message.NewAssembler("m1", "c1")
	msg, err := a.Consume(context.Background(), stream.NewDecoder(strings.NewReader(body)))
	require.NoError(t, err)

	assert.Equal(t, message.StatusFailed, msg.Status)
	assert.Equal(t, "partial", msg.Text())
	assert.NotEmpty(t, msg.Error)
}

func TestAssembler_OnUpdateReceivesSnapshots(t *testing.T) {
	var texts []string
	a := message.NewAssembler("m1", "c1", message.WithOnUpdate(func(m message.Message) {
		texts = append(texts, m.Text())
	}))
	applyAll(t, a, stream.TextDelta{Text: "a"}, stream.TextDelta{Text: "b"})

	assert.Equal(t, []string{"a", "ab"}, texts)
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	a := message.NewAssembler("m1", "c1")
	applyAll(t, a,
		stream.ReasoningDelta{Text: "hmm"},
		stream.TextDelta{Text: "answer"},
		stream.ToolCall{ToolCallID: "a", ToolName: "calculator", Args: json.RawMessage(`{"expression":"2*3"}`)},
		stream.ToolResult{ToolCallID: "a", Result: json.RawMessage(`{"result":6}`)},
	)
	original := a.Snapshot()

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded message.Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original.Parts, decoded.Parts)
	assert.Equal(t, original.ID, decoded.ID)
}
