package events

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
)

const eventIDLength = 12

// Publisher publishes quota events.
type Publisher struct {
	publisher message.Publisher
	newID     func() string
}

// NewPublisher creates a new quota event publisher.
func NewPublisher(publisher message.Publisher) (*Publisher, error) {
	newID, err := nanoid.Standard(eventIDLength)
	if err != nil {
		return nil, fmt.Errorf("event id generator: %w", err)
	}

	return &Publisher{publisher: publisher, newID: newID}, nil
}

// PublishRejected publishes a rejection event, assigning an ID when it has none.
func (p *Publisher) PublishRejected(event *RejectedEvent) error {
	if event.ID == "" {
		event.ID = p.newID()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(uuid.NewString(), payload)

	return p.publisher.Publish(TopicQuotaRejected, msg)
}

// Shutdown closes the underlying publisher. It is a no-op on a nil Publisher,
// which is what the container provides when events are disabled.
func (p *Publisher) Shutdown() error {
	if p == nil {
		return nil
	}

	return p.publisher.Close()
}
