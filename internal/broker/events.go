package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"listing-service/internal/models"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func listingKey(id uuid.UUID) string {
	return fmt.Sprintf("listing-%s", id)
}

// PublishPaymentSettled publishes PaymentSettled event
func (ep *EventPublisher) PublishPaymentSettled(ctx context.Context, event *models.PaymentSettledEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishListingStatusChanged publishes ListingStatusChanged event
func (ep *EventPublisher) PublishListingStatusChanged(ctx context.Context, event *models.ListingStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishListingRenewed publishes ListingRenewed event
func (ep *EventPublisher) PublishListingRenewed(ctx context.Context, event *models.ListingRenewedEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onModerationDecided func(context.Context, *models.ModerationDecidedEvent) error
	onContractCompleted func(context.Context, *models.ContractCompletedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnModerationDecided registers a handler for ModerationDecided events
func (eh *EventHandler) OnModerationDecided(handler func(context.Context, *models.ModerationDecidedEvent) error) {
	eh.onModerationDecided = handler
}

// OnContractCompleted registers a handler for ContractCompleted events
func (eh *EventHandler) OnContractCompleted(handler func(context.Context, *models.ContractCompletedEvent) error) {
	eh.onContractCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeModerationDecided:
		if eh.onModerationDecided != nil {
			var event models.ModerationDecidedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ModerationDecided event: %w", err)
			}
			return eh.onModerationDecided(ctx, &event)
		}

	case models.EventTypeContractCompleted:
		if eh.onContractCompleted != nil {
			var event models.ContractCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ContractCompleted event: %w", err)
			}
			return eh.onContractCompleted(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
