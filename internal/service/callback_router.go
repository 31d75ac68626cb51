package service

import (
	"context"
	"fmt"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/store"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Flow is how a settlement is dispatched, decided from the listing status
// at settlement time rather than from anything stored on the payment
type Flow string

const (
	FlowFirstPost Flow = "FIRST_POST"
	FlowRenewal   Flow = "RENEWAL"
	FlowNone      Flow = "NONE"
)

func classify(status models.ListingStatus) Flow {
	switch status {
	case models.ListingStatusPendingPayment:
		return FlowFirstPost
	case models.ListingStatusActive, models.ListingStatusExpired:
		return FlowRenewal
	}
	return FlowNone
}

// CallbackResult reports what a gateway notification did
type CallbackResult struct {
	Outcome SettleOutcome
	Flow    Flow
	Payment *models.PaymentRecord
	// Listing is nil when the settlement short-circuited as a duplicate.
	Listing *models.Listing
}

// CallbackRouter turns verified gateway notifications into ledger and
// listing transitions. The browser return, the gateway pushes and the
// reconciliation sweeper all settle through it.
type CallbackRouter struct {
	repo      store.Repository
	ledger    *PaymentLedger
	lifecycle *ListingLifecycle
	gateways  gateway.Registry
	cache     Cache
	notify    *notifier
	dedupeTTL time.Duration
	logger    *zap.Logger
}

// NewCallbackRouter creates a new callback router
func NewCallbackRouter(
	repo store.Repository,
	ledger *PaymentLedger,
	lifecycle *ListingLifecycle,
	gateways gateway.Registry,
	cache Cache,
	publisher EventPublisher,
	clock util.Clock,
	dedupeTTL time.Duration,
) *CallbackRouter {
	logger := util.GetLogger()
	return &CallbackRouter{
		repo:      repo,
		ledger:    ledger,
		lifecycle: lifecycle,
		gateways:  gateways,
		cache:     cache,
		notify:    &notifier{publisher: publisher, clock: clock, logger: logger},
		dedupeTTL: dedupeTTL,
		logger:    logger,
	}
}

func callbackKey(gw models.Gateway, paymentID uuid.UUID) string {
	return fmt.Sprintf("callback:%s:%s", gw, paymentID)
}

// HandleCallback verifies a raw gateway notification and settles the payment
// it refers to. Trust failures return before anything is written.
func (r *CallbackRouter) HandleCallback(ctx context.Context, kind models.Gateway, raw gateway.RawCallback) (*CallbackResult, error) {
	ctx, span := util.StartSpan(ctx, "CallbackRouter.HandleCallback")
	defer span.End()

	client, err := r.gateways.Get(kind)
	if err != nil {
		return nil, err
	}

	cb, err := client.ParseCallback(raw)
	if err != nil {
		r.reject(kind, err)
		return nil, err
	}

	payment, err := r.repo.GetPaymentByGatewayRef(ctx, kind, cb.Reference)
	if err != nil {
		r.reject(kind, err)
		return nil, err
	}

	if cb.Amount != payment.Amount {
		r.logger.Warn("Callback amount mismatch",
			zap.String("payment_id", payment.ID.String()),
			zap.Int64("expected", payment.Amount),
			zap.Int64("received", cb.Amount))
		r.reject(kind, models.ErrAmountMismatch)
		return nil, models.ErrAmountMismatch
	}

	seen, err := r.cache.CheckIdempotencyKey(ctx, callbackKey(kind, payment.ID))
	if err != nil {
		r.logger.Warn("Callback dedupe lookup failed", zap.Error(err))
	}
	if seen {
		util.DuplicateCallbacksTotal.WithLabelValues(string(kind)).Inc()
		r.logger.Info("Duplicate callback short-circuited",
			zap.String("gateway", string(kind)),
			zap.String("payment_id", payment.ID.String()))
		return &CallbackResult{Outcome: OutcomeAlreadyProcessed, Flow: FlowNone, Payment: payment}, nil
	}

	reason := ""
	if !cb.Success {
		reason = fmt.Sprintf("gateway response %s", cb.ResponseCode)
	}
	return r.Settle(ctx, SettleRequest{
		PaymentID: payment.ID,
		Success:   cb.Success,
		TxnID:     cb.TxnID,
		Reason:    reason,
	})
}

// Settle applies a terminal payment decision and dispatches it to the
// listing. It is safe to call any number of times for the same payment:
// only the first call changes anything.
func (r *CallbackRouter) Settle(ctx context.Context, req SettleRequest) (*CallbackResult, error) {
	ctx, span := util.StartSpan(ctx, "CallbackRouter.Settle")
	defer span.End()

	var (
		result CallbackResult
		from   models.ListingStatus
	)

	err := r.repo.InTx(ctx, func(q store.Repository) error {
		payment, err := q.GetPayment(ctx, req.PaymentID)
		if err != nil {
			return err
		}

		listing, err := q.GetListingForUpdate(ctx, payment.ListingID)
		if err != nil {
			return err
		}
		from = listing.Status
		flow := classify(from)

		settled, err := r.ledger.Settle(ctx, q, req)
		if err != nil {
			return err
		}
		result = CallbackResult{Outcome: settled.Outcome, Flow: flow, Payment: settled.Payment, Listing: listing}
		if settled.Outcome == OutcomeAlreadyProcessed {
			return nil
		}

		changed := false
		switch flow {
		case FlowFirstPost:
			changed = r.lifecycle.OnPaymentSettled(listing, settled.Payment, req.Success)
		case FlowRenewal:
			changed, err = r.lifecycle.OnRenewalSettled(ctx, listing, settled.Payment, req.Success)
			if err != nil {
				return err
			}
		default:
			r.logger.Warn("Settled payment for listing outside payment flows",
				zap.String("payment_id", settled.Payment.ID.String()),
				zap.String("listing_id", listing.ID.String()),
				zap.String("status", string(from)))
		}

		if changed {
			return q.UpdateListing(ctx, listing, from)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeAlreadyProcessed {
		util.DuplicateCallbacksTotal.WithLabelValues(string(result.Payment.Gateway)).Inc()
		return &result, nil
	}

	if err := r.cache.SetIdempotencyKey(ctx, callbackKey(result.Payment.Gateway, result.Payment.ID), string(result.Payment.Status), r.dedupeTTL); err != nil {
		r.logger.Warn("Failed to record callback idempotency key", zap.Error(err))
	}

	r.notify.paymentSettled(ctx, result.Payment)
	r.notify.statusChanged(ctx, result.Listing, from, "")
	if result.Flow == FlowRenewal && req.Success {
		r.notify.renewed(ctx, result.Listing)
	}

	r.logger.Info("Payment settlement applied",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("listing_id", result.Listing.ID.String()),
		zap.String("flow", string(result.Flow)),
		zap.String("listing_status", string(result.Listing.Status)))

	return &result, nil
}

func (r *CallbackRouter) reject(kind models.Gateway, err error) {
	util.RejectedCallbacksTotal.WithLabelValues(string(kind), string(models.CodeOf(err))).Inc()
	r.logger.Warn("Gateway callback rejected", zap.String("gateway", string(kind)), zap.Error(err))
}
