package events

import (
	"context"
	"sync"
)

// Recorder keeps published envelopes in memory for tests.
type Recorder struct {
	mu  sync.Mutex
	evs []Envelope
}

func (r *Recorder) Publish(_ context.Context, evs ...Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, evs...)
	return nil
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.evs))
	copy(out, r.evs)
	return out
}

func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.evs))
	for _, e := range r.evs {
		out = append(out, e.EventType)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.evs = nil
	r.mu.Unlock()
}
