// Package pubsubtest provides an in-memory Publisher for tests.
package pubsubtest

import (
	"context"
	"sync"

	"github.com/roboricindustries/raycon-changefeed/pkg/pubsub"
)

// Recorder captures every publish attempt. Attempts that FailWhen rejects are
// counted but not kept in Messages.
type Recorder struct {
	mu       sync.Mutex
	messages []pubsub.Message
	attempts []pubsub.Message
	fail     func(pubsub.Message) error
	closed   bool
}

var _ pubsub.Publisher = (*Recorder)(nil)

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) FailWhen(fn func(pubsub.Message) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

func (r *Recorder) Publish(_ context.Context, msg pubsub.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, msg)
	if r.fail != nil {
		if err := r.fail(msg); err != nil {
			return err
		}
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Messages() []pubsub.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pubsub.Message(nil), r.messages...)
}

func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Topic)
	}
	return out
}

// Attempts returns every message passed to Publish, failed ones included.
func (r *Recorder) Attempts() []pubsub.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pubsub.Message(nil), r.attempts...)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
