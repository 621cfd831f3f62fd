package document

import (
	"encoding/json"
	"fmt"
	"sync"

	"agentforge/chat-api/internal/domain/stream"
)

// Status of a document being received.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
)

// View is the client side state of a document.
type View struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Kind     Kind              `json:"kind"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Status   Status            `json:"status"`
}

// Assembler folds document data events into a View.
type Assembler struct {
	mu   sync.Mutex
	view View
}

// NewAssembler creates an idle assembler.
func NewAssembler() *Assembler {
	return &Assembler{view: View{Status: StatusIdle}}
}

// Apply folds one event. Events other than document data are ignored and
// reported as not consumed.
func (a *Assembler) Apply(ev stream.Event) (bool, error) {
	d, ok := ev.(stream.Data)
	if !ok {
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch d.Kind {
	case stream.DataKindTag:
		var kind string
		if err := decode(d, &kind); err != nil {
			return true, err
		}
		a.view.Kind = Kind(kind)
		a.view.Status = StatusStreaming
	case stream.DataID:
		if err := decode(d, &a.view.ID); err != nil {
			return true, err
		}
		a.view.Status = StatusStreaming
	case stream.DataTitle:
		if err := decode(d, &a.view.Title); err != nil {
			return true, err
		}
	case stream.DataClear:
		a.view.Content = ""
		a.view.Status = StatusStreaming
	case stream.DataTextDelta:
		var chunk string
		if err := decode(d, &chunk); err != nil {
			return true, err
		}
		a.view.Content += chunk
		a.view.Status = StatusStreaming
	case stream.DataCodeDelta, stream.DataSheetDelta:
		if err := decode(d, &a.view.Content); err != nil {
			return true, err
		}
		a.view.Status = StatusStreaming
	case stream.DataReactDelta:
		var out reactOutput
		if err := decode(d, &out); err != nil {
			return true, err
		}
		a.view.Content = out.Code
		if out.ComponentName != "" {
			a.setMetadata("componentName", out.ComponentName)
		}
		a.view.Status = StatusStreaming
	case stream.DataMetadataUpdate:
		var meta map[string]string
		if err := decode(d, &meta); err != nil {
			return true, err
		}
		for k, v := range meta {
			a.setMetadata(k, v)
		}
	case stream.DataFinish:
		a.view.Status = StatusIdle
	default:
		return false, nil
	}
	return true, nil
}

func (a *Assembler) setMetadata(k, v string) {
	if a.view.Metadata == nil {
		a.view.Metadata = make(map[string]string)
	}
	a.view.Metadata[k] = v
}

// View returns a copy of the current state.
func (a *Assembler) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.view
	out.Metadata = copyMetadata(a.view.Metadata)
	return out
}

func decode(d stream.Data, v any) error {
	if len(d.Content) == 0 {
		return fmt.Errorf("%s event without content", d.Kind)
	}
	if err := json.Unmarshal(d.Content, v); err != nil {
		return fmt.Errorf("decode %s content: %w", d.Kind, err)
	}
	return nil
}
