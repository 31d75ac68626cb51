package service

import (
	"context"

	"listing-service/internal/models"
	"listing-service/internal/util"

	"go.uber.org/zap"
)

// notifier publishes after commit. Failures are logged and never surface to
// the caller; the committed state is authoritative.
type notifier struct {
	publisher EventPublisher
	clock     util.Clock
	logger    *zap.Logger
}

func (n *notifier) statusChanged(ctx context.Context, l *models.Listing, from models.ListingStatus, reason string) {
	if l == nil || from == l.Status {
		return
	}
	util.ListingTransitionsTotal.WithLabelValues(string(from), string(l.Status)).Inc()

	event := &models.ListingStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeListingStatusChanged, n.clock.Now()),
		ListingID: l.ID,
		SellerID:  l.SellerID,
		From:      from,
		To:        l.Status,
		Reason:    reason,
	}
	if err := n.publisher.PublishListingStatusChanged(ctx, event); err != nil {
		n.logger.Error("Failed to publish ListingStatusChanged event",
			zap.String("listing_id", l.ID.String()),
			zap.Error(err))
	}
}

func (n *notifier) paymentSettled(ctx context.Context, p *models.PaymentRecord) {
	event := &models.PaymentSettledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentSettled, n.clock.Now()),
		PaymentID: p.ID,
		ListingID: p.ListingID,
		Gateway:   p.Gateway,
		Purpose:   p.Purpose,
		Amount:    p.Amount,
		Success:   p.Status == models.PaymentStatusCompleted,
	}
	if p.FailureReason != nil {
		event.Reason = *p.FailureReason
	}
	if err := n.publisher.PublishPaymentSettled(ctx, event); err != nil {
		n.logger.Error("Failed to publish PaymentSettled event",
			zap.String("payment_id", p.ID.String()),
			zap.Error(err))
	}
}

func (n *notifier) renewed(ctx context.Context, l *models.Listing) {
	event := &models.ListingRenewedEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeListingRenewed, n.clock.Now()),
		ListingID:      l.ID,
		SellerID:       l.SellerID,
		ExpiresAt:      l.ExpiresAt,
		FeaturedUntil:  l.FeaturedUntil,
		StartRenewalAt: l.StartRenewalAt,
	}
	if err := n.publisher.PublishListingRenewed(ctx, event); err != nil {
		n.logger.Error("Failed to publish ListingRenewed event",
			zap.String("listing_id", l.ID.String()),
			zap.Error(err))
	}
}
