// Package pubsub publishes emitted messages to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// publishFunc sends one message and blocks until the server assigns an id.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Sink wraps a Pub/Sub publisher.
type Sink struct {
	publish publishFunc
	stop    func()
	closer  func() error
	// propagator overrides the global one; nil uses otel.GetTextMapPropagator.
	propagator propagation.TextMapPropagator
}

// New connects to projectID and publishes to topic.
func New(ctx context.Context, projectID, topic string) (*Sink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := client.Publisher(topic)
	return &Sink{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return publisher.Publish(ctx, msg).Get(ctx)
		},
		stop:   publisher.Stop,
		closer: client.Close,
	}, nil
}

// Emit marshals the message to JSON, copies the trace context from ctx into
// the attributes and publishes it, waiting for the server ack.
func (s *Sink) Emit(ctx context.Context, msg forum.EmittedMessage) error {
	if s.publish == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	out := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"message_id": msg.ID},
	}
	prop := s.propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	prop.Inject(ctx, &pubsubCarrier{attrs: out.Attributes})

	if _, err := s.publish(ctx, out); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (s *Sink) Close() error {
	if s.stop != nil {
		s.stop()
	}
	if s.closer == nil {
		return nil
	}
	if err := s.closer(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
