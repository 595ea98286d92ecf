package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub notifier.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// PubSubNotifier publishes completions as JSON messages.
type PubSubNotifier struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewPubSubNotifier creates a new Pub/Sub notifier.
func NewPubSubNotifier(ctx context.Context, cfg PubSubConfig) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubNotifier{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// NewMessage encodes a completion with routing attributes.
func NewMessage(c Completion) (*pubsub.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding completion: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":   "point_completed",
			"run_id":  c.RunID,
			"point":   c.Point,
			"status":  c.Status,
			"records": strconv.Itoa(c.Records),
		},
	}, nil
}

// PointCompleted publishes c and waits for the server acknowledgement.
func (n *PubSubNotifier) PointCompleted(ctx context.Context, c Completion) error {
	msg, err := NewMessage(c)
	if err != nil {
		return err
	}

	serverID, err := n.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", n.topic, err)
	}

	n.logger.Debug().
		Str("topic", n.topic).
		Str("message_id", serverID).
		Str("point", c.Point).
		Msg("completion published")
	return nil
}

// Close flushes pending messages and closes the client.
func (n *PubSubNotifier) Close() error {
	n.publisher.Stop()
	return n.client.Close()
}
