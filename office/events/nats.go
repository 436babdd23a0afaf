package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where intent events land unless overridden.
const DefaultSubject = "office.intent.events"

// NATSPublisher publishes intent events to a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher creates a publisher over an established connection.
// An empty subject uses DefaultSubject.
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject}
}

func (p *NATSPublisher) Publish(_ context.Context, event *IntentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode intent event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish intent event to %s: %w", p.subject, err)
	}
	return nil
}
