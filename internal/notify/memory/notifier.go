// Package memory provides an in-memory notify.Notifier. It backs tests
// and local development setups where no messaging broker is running.
package memory

import (
	"context"
	"sync"

	"github.com/everylotbot/everylot/internal/everylot"
)

// Notifier records events instead of delivering them anywhere.
type Notifier struct {
	mu     sync.Mutex
	events []everylot.PostEvent
}

// NewNotifier returns an empty recording notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Notify appends the event to the in-memory record.
func (n *Notifier) Notify(ctx context.Context, event everylot.PostEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (n *Notifier) Events() []everylot.PostEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]everylot.PostEvent, len(n.events))
	copy(out, n.events)
	return out
}

// Close does nothing and returns nil.
func (n *Notifier) Close() error { return nil }
