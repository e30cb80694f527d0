package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ClientInterface is the broker surface the pipeline components depend on,
// kept narrow so tests can mock it.
type ClientInterface interface {
	// SetupStream creates or updates the stream to match the config.
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer creates or replaces the durable consumer on the stream.
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// Subscribe opens a durable queue subscription with explicit acks.
	Subscribe(subject, consumer, group string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePush binds a push queue subscription to a named stream.
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePull binds a pull subscription to a pre-created durable consumer.
	SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error)

	// Publish sends a message with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error

	// Close closes the NATS connection.
	Close()

	// NatsConn exposes the underlying connection for health checks.
	NatsConn() *nats.Conn
}
