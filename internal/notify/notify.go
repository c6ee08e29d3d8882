// Package notify defines the interface for fanning post-completion
// events out to downstream consumers. The abstraction keeps the bot
// independent of a specific messaging backend (GCP Pub/Sub, RabbitMQ,
// in-memory for tests).
package notify

import (
	"context"

	"github.com/everylotbot/everylot/internal/everylot"
)

// Notifier delivers completion events to a messaging backend.
type Notifier interface {
	// Notify sends the event for a lot that has been durably marked
	// posted. Implementations return only after the backend has
	// accepted the event; the process exits shortly after a post, so
	// an unacknowledged send would be lost.
	Notify(ctx context.Context, event everylot.PostEvent) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOp is a Notifier that discards events. It is the default when no
// messaging backend is configured.
type NoOp struct{}

// Notify for NoOp does nothing and returns nil.
func (NoOp) Notify(context.Context, everylot.PostEvent) error { return nil }

// Close for NoOp does nothing and returns nil.
func (NoOp) Close() error { return nil }
