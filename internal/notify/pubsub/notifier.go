// Package pubsub implements the notify.Notifier interface on Google
// Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/everylotbot/everylot/internal/everylot"
	"go.uber.org/zap"
)

// Config holds the Pub/Sub destination settings.
type Config struct {
	ProjectID string
	TopicID   string
}

// Notifier publishes post-completion events to a Pub/Sub topic.
type Notifier struct {
	client *gcppubsub.Client
	topic  *gcppubsub.Topic
	logger *zap.Logger
}

// New wraps an existing Pub/Sub client and resolves a handle to the
// configured topic. The caller builds the client (credentials,
// endpoint); Close tears it down.
func New(ctx context.Context, client *gcppubsub.Client, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub topic id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	return &Notifier{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Notify encodes the event as JSON and publishes it, blocking until the
// server acknowledges the message. The process exits shortly after a
// post; an unacknowledged publish would never leave the batching buffer.
func (n *Notifier) Notify(ctx context.Context, event everylot.PostEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode post event: %w", err)
	}

	result := n.topic.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": event.RunID,
			"lot_id": strconv.FormatInt(event.LotID, 10),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish post event: %w", err)
	}

	n.logger.Debug("Published post event",
		zap.String("message_id", id),
		zap.Int64("lot_id", event.LotID),
	)
	return nil
}

// Close stops the topic publisher, flushing anything buffered, and
// closes the underlying client connection.
func (n *Notifier) Close() error {
	n.topic.Stop()
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
