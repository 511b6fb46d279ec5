package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrRecipientUnreachable is returned by Recorder for recipients marked as failing.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Recorder is an in-memory Notifier for tests and dry runs.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	failing  map[int64]bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{failing: make(map[int64]bool)}
}

// FailFor makes every Send to recipient return ErrRecipientUnreachable.
func (r *Recorder) FailFor(recipient int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[recipient] = true
}

// Recover undoes FailFor.
func (r *Recorder) Recover(recipient int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failing, recipient)
}

// Send records the message.
func (r *Recorder) Send(ctx context.Context, recipient int64, kind Kind, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing[recipient] {
		return ErrRecipientUnreachable
	}
	r.messages = append(r.messages, Message{Recipient: recipient, Kind: kind, Text: text})
	return nil
}

// Messages returns a copy of everything delivered so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Count returns how many messages of kind were delivered to recipient.
func (r *Recorder) Count(recipient int64, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, m := range r.messages {
		if m.Recipient == recipient && m.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
