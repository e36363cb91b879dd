package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"devis-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishQuoteCreated publishes QuoteCreated event
func (ep *EventPublisher) PublishQuoteCreated(ctx context.Context, event *models.QuoteCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, quoteKey(event.QuoteID), event)
}

// PublishQuoteSubmitted publishes QuoteSubmitted event
func (ep *EventPublisher) PublishQuoteSubmitted(ctx context.Context, event *models.QuoteSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, quoteKey(event.QuoteID), event)
}

// PublishQuoteTransitioned publishes QuoteTransitioned event
func (ep *EventPublisher) PublishQuoteTransitioned(ctx context.Context, event *models.QuoteTransitionedEvent) error {
	return ep.producer.PublishEvent(ctx, quoteKey(event.QuoteID), event)
}

func quoteKey(quoteID int64) string {
	return fmt.Sprintf("quote-%d", quoteID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onQuoteSubmitted    func(context.Context, *models.QuoteSubmittedEvent) error
	onQuoteTransitioned func(context.Context, *models.QuoteTransitionedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnQuoteSubmitted registers a handler for QuoteSubmitted events
func (eh *EventHandler) OnQuoteSubmitted(handler func(context.Context, *models.QuoteSubmittedEvent) error) {
	eh.onQuoteSubmitted = handler
}

// OnQuoteTransitioned registers a handler for QuoteTransitioned events
func (eh *EventHandler) OnQuoteTransitioned(handler func(context.Context, *models.QuoteTransitionedEvent) error) {
	eh.onQuoteTransitioned = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeQuoteSubmitted:
		if eh.onQuoteSubmitted != nil {
			var event models.QuoteSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal QuoteSubmitted event: %w", err)
			}
			return eh.onQuoteSubmitted(ctx, &event)
		}

	case models.EventTypeQuoteTransitioned:
		if eh.onQuoteTransitioned != nil {
			var event models.QuoteTransitionedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal QuoteTransitioned event: %w", err)
			}
			return eh.onQuoteTransitioned(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
