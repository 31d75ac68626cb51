package worker

import (
	"context"
	"fmt"

	"listing-service/internal/broker"
	"listing-service/internal/models"
	"listing-service/internal/store"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListingTransitions is the slice of the listing lifecycle driven by
// upstream events
type ListingTransitions interface {
	Approve(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	Reject(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error)
	MarkSold(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
}

// EventProcessor applies consumed events to listings at most once per
// event id
type EventProcessor struct {
	repo     store.Repository
	listings ListingTransitions
	logger   *zap.Logger
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(repo store.Repository, listings ListingTransitions) *EventProcessor {
	return &EventProcessor{
		repo:     repo,
		listings: listings,
		logger:   util.GetLogger(),
	}
}

// HandleModerationDecided approves or rejects a listing waiting for review
func (p *EventProcessor) HandleModerationDecided(ctx context.Context, event *models.ModerationDecidedEvent) error {
	ctx, span := util.StartSpan(ctx, "EventProcessor.HandleModerationDecided")
	defer span.End()

	return p.once(ctx, event.BaseEvent, event.ListingID, func() error {
		if event.Approved {
			_, err := p.listings.Approve(ctx, event.ListingID)
			return err
		}
		_, err := p.listings.Reject(ctx, event.ListingID, event.Reason)
		return err
	})
}

// HandleContractCompleted marks the listing of a completed sale contract as sold
func (p *EventProcessor) HandleContractCompleted(ctx context.Context, event *models.ContractCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "EventProcessor.HandleContractCompleted")
	defer span.End()

	return p.once(ctx, event.BaseEvent, event.ListingID, func() error {
		_, err := p.listings.MarkSold(ctx, event.ListingID)
		return err
	})
}

// once runs apply unless the event was already processed. Domain rejections
// are final and get recorded; anything else is returned so the message is
// redelivered.
func (p *EventProcessor) once(ctx context.Context, base models.BaseEvent, listingID uuid.UUID, apply func() error) error {
	if base.EventID == "" {
		p.logger.Warn("Dropping event without id", zap.String("type", base.EventType))
		return nil
	}

	done, err := p.repo.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check processed event: %w", err)
	}
	if done {
		p.logger.Info("Event already processed",
			zap.String("event_id", base.EventID),
			zap.String("type", base.EventType))
		return nil
	}

	if err := apply(); err != nil {
		code := models.CodeOf(err)
		if code.Kind() == models.KindInternal {
			return err
		}
		p.logger.Warn("Event rejected by listing lifecycle",
			zap.String("event_id", base.EventID),
			zap.String("type", base.EventType),
			zap.String("listing_id", listingID.String()),
			zap.String("code", string(code)))
	}

	if err := p.repo.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// ModerationWorker consumes moderation decisions
type ModerationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewModerationWorker creates a new moderation worker
func NewModerationWorker(consumer *broker.Consumer, processor *EventProcessor) *ModerationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnModerationDecided(processor.HandleModerationDecided)

	return &ModerationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *ModerationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting moderation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ModerationWorker) Stop() error {
	w.logger.Info("Stopping moderation worker")
	return w.consumer.Close()
}

// ContractWorker consumes completed sale contracts
type ContractWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewContractWorker creates a new contract worker
func NewContractWorker(consumer *broker.Consumer, processor *EventProcessor) *ContractWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnContractCompleted(processor.HandleContractCompleted)

	return &ContractWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the contract worker
func (w *ContractWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting contract worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the contract worker
func (w *ContractWorker) Stop() error {
	w.logger.Info("Stopping contract worker")
	return w.consumer.Close()
}
