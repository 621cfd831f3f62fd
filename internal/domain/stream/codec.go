package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxLineSize bounds a single encoded event.
const MaxLineSize = 10 * 1024 * 1024

var (
	// ErrMalformedLine is returned when a line cannot be split into code and payload.
	ErrMalformedLine = errors.New("malformed stream line")
	// ErrUnknownEvent is returned for unregistered event codes or data kinds.
	ErrUnknownEvent = errors.New("unknown stream event")
)

var codes = map[EventType]byte{
	EventStart:          'f',
	EventTextDelta:      '0',
	EventReasoningDelta: 'g',
	EventToolCall:       '9',
	EventToolResult:     'a',
	EventData:           '2',
	EventError:          '3',
	EventFinish:         'd',
}

// MarshalLine encodes ev as a single newline-terminated line.
func MarshalLine(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrUnknownEvent)
	}
	code, ok := codes[ev.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type())
	}

	var payload any
	switch v := ev.(type) {
	case TextDelta:
		payload = v.Text
	case ReasoningDelta:
		payload = v.Text
	case ToolCall:
		if v.ToolCallID == "" || v.ToolName == "" {
			return nil, fmt.Errorf("tool-call without toolCallId or toolName")
		}
		if len(v.Args) == 0 {
			v.Args = json.RawMessage(`{}`)
		}
		payload = v
	case ToolResult:
		if v.ToolCallID == "" {
			return nil, fmt.Errorf("tool-result without toolCallId")
		}
		if len(v.Result) == 0 {
			v.Result = json.RawMessage(`null`)
		}
		payload = v
	case Data:
		if !v.Kind.Valid() {
			return nil, fmt.Errorf("%w: data type %q", ErrUnknownEvent, v.Kind)
		}
		payload = v
	default:
		payload = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Type(), err)
	}
	line := make([]byte, 0, len(body)+3)
	line = append(line, code, ':')
	line = append(line, body...)
	line = append(line, '\n')
	return line, nil
}

// UnmarshalLine decodes one line (with or without its trailing newline).
func UnmarshalLine(line []byte) (Event, error) {
	line = bytes.TrimRight(line, "\r\n")
	idx := bytes.IndexByte(line, ':')
	if idx != 1 {
		return nil, ErrMalformedLine
	}
	body := line[idx+1:]

	switch line[0] {
	case 'f':
		var v Start
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: start: %v", ErrMalformedLine, err)
		}
		return v, nil
	case '0':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("%w: text-delta: %v", ErrMalformedLine, err)
		}
		return TextDelta{Text: s}, nil
	case 'g':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("%w: reasoning-delta: %v", ErrMalformedLine, err)
		}
		return ReasoningDelta{Text: s}, nil
	case '9':
		var v ToolCall
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: tool-call: %v", ErrMalformedLine, err)
		}
		if v.ToolCallID == "" || v.ToolName == "" {
			return nil, fmt.Errorf("%w: tool-call missing id or name", ErrMalformedLine)
		}
		return v, nil
	case 'a':
		var v ToolResult
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: tool-result: %v", ErrMalformedLine, err)
		}
		if v.ToolCallID == "" {
			return nil, fmt.Errorf("%w: tool-result missing id", ErrMalformedLine)
		}
		return v, nil
	case '2':
		var v Data
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformedLine, err)
		}
		if !v.Kind.Valid() {
			return nil, fmt.Errorf("%w: data type %q", ErrUnknownEvent, v.Kind)
		}
		return v, nil
	case '3':
		var v Error
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrMalformedLine, err)
		}
		return v, nil
	case 'd':
		var v Finish
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: finish: %v", ErrMalformedLine, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: code %q", ErrUnknownEvent, line[0])
	}
}

// Encoder writes events to w, flushing after each one when w supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder creates an Encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// Encode writes a single event.
func (e *Encoder) Encode(ev Event) error {
	line, err := MarshalLine(ev)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", ev.Type(), err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Decoder reads events from a byte stream in arrival order.
//
// Next returns io.EOF after a Finish or Error event. A stream that ends before
// either returns io.ErrUnexpectedEOF. A line that fails to decode yields one
// Error event with CodeWireCorruption, after which the decoder is exhausted.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next event.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return nil, io.EOF
	}

	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := UnmarshalLine(line)
		if err != nil {
			d.done = true
			return Error{Message: err.Error(), Code: CodeWireCorruption}, nil
		}
		switch ev.(type) {
		case Finish, Error:
			d.done = true
		}
		return ev, nil
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Error{Message: "stream line exceeds maximum size", Code: CodeWireCorruption}, nil
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, io.ErrUnexpectedEOF
}
