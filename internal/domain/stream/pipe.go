package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Emit once the pipe no longer accepts events.
var ErrClosed = errors.New("stream closed")

// Emitter accepts events for delivery. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Pipe merges events from many producers onto one ordered consumer.
type Pipe struct {
	mu       sync.RWMutex
	events   chan Event
	closed   bool
	done     chan struct{}
	failOnce sync.Once
	err      error
}

// NewPipe creates a pipe with the given buffer size.
func NewPipe(buffer int) *Pipe {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipe{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Emit queues ev for the consumer.
func (p *Pipe) Emit(ctx context.Context, ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.events <- ev:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend stops accepting events. Queued events are still delivered by Drain.
func (p *Pipe) CloseSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.events)
}

// Drain encodes events until CloseSend is called, the encoder fails, or ctx ends.
// After a failure, pending and future Emit calls return ErrClosed.
func (p *Pipe) Drain(ctx context.Context, enc *Encoder) error {
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				p.fail(err)
				return err
			}
		case <-ctx.Done():
			p.fail(ctx.Err())
			return ctx.Err()
		}
	}
}

// Err returns the error that stopped the consumer, if any.
func (p *Pipe) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Pipe) fail(err error) {
	p.failOnce.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Recorder collects emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records ev.
func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
