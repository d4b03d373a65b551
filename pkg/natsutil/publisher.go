// Package natsutil provides the NATS JetStream backed sinks: the durable
// event stream and the object-store writer.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tracelight/tracelight/pkg/models"
)

// EventPublisher publishes capture envelopes to a JetStream stream, one
// envelope per publish. It implements the broadcaster's StreamSink.
type EventPublisher struct {
	js            jetstream.JetStream
	subjectPrefix string
}

// NewEventPublisher creates a publisher over an existing JetStream
// context. Envelopes are published to <subjectPrefix>.<category>.
func NewEventPublisher(js jetstream.JetStream, subjectPrefix string) *EventPublisher {
	return &EventPublisher{js: js, subjectPrefix: subjectPrefix}
}

// Publish sends one envelope to the stream.
func (p *EventPublisher) Publish(ctx context.Context, envelope *models.Envelope) error {
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, envelope.Category)

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

// Connect dials NATS and returns a JetStream context.
func Connect(natsURL string, opts ...nats.Option) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return nc, js, nil
}

// EnsureStream creates the capture stream if it does not exist yet.
func EnsureStream(ctx context.Context, js jetstream.JetStream, streamName, subjectPrefix string) error {
	if _, err := js.Stream(ctx, streamName); err == nil {
		return nil
	}

	cfg := jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".*"},
	}

	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to create or get stream %s: %w", streamName, err)
	}

	return nil
}
