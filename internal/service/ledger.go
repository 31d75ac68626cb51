package service

import (
	"context"
	"fmt"

	"listing-service/internal/models"
	"listing-service/internal/store"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettleOutcome tells a caller whether its settle call did the work
type SettleOutcome string

const (
	OutcomeApplied          SettleOutcome = "APPLIED"
	OutcomeAlreadyProcessed SettleOutcome = "ALREADY_PROCESSED"
)

// OpenRequest describes a new payment record
type OpenRequest struct {
	// ID is assigned by the caller so the gateway reference can be derived
	// from it before the row exists.
	ID         uuid.UUID
	ListingID  uuid.UUID
	Amount     int64
	Currency   string
	Gateway    models.Gateway
	GatewayRef string
	Purpose    models.PaymentPurpose
	Selection  models.PackageSelection
	RetryOf    *uuid.UUID
}

// SettleRequest is a terminal decision for one payment
type SettleRequest struct {
	PaymentID uuid.UUID
	Success   bool
	TxnID     string
	Reason    string
}

// SettleResult carries the settled (or already terminal) record
type SettleResult struct {
	Outcome SettleOutcome
	Payment *models.PaymentRecord
}

// PaymentLedger is the bookkeeping primitive for payment records. It never
// reads or writes listings; callers pass the repository (usually a
// transaction) they want it to run in.
type PaymentLedger struct {
	clock  util.Clock
	logger *zap.Logger
}

// NewPaymentLedger creates a new payment ledger
func NewPaymentLedger(clock util.Clock) *PaymentLedger {
	return &PaymentLedger{
		clock:  clock,
		logger: util.GetLogger(),
	}
}

// Open records a new PENDING payment. A zero amount needs no gateway and is
// recorded COMPLETED straight away.
func (pl *PaymentLedger) Open(ctx context.Context, q store.Repository, req OpenRequest) (*models.PaymentRecord, error) {
	if req.Amount < 0 {
		return nil, models.NewDomainError(models.ErrCodeInvalidRequest, "amount must not be negative", nil)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	payment := &models.PaymentRecord{
		ID:               req.ID,
		ListingID:        req.ListingID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Status:           models.PaymentStatusPending,
		Gateway:          req.Gateway,
		GatewayRef:       req.GatewayRef,
		Purpose:          req.Purpose,
		PackageSelection: req.Selection,
		RetryOf:          req.RetryOf,
	}
	if req.Amount == 0 {
		now := pl.clock.Now()
		payment.Status = models.PaymentStatusCompleted
		payment.SettledAt = &now
	}

	if err := q.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to open payment: %w", err)
	}

	util.PaymentsOpenedTotal.WithLabelValues(string(payment.Gateway), string(payment.Purpose)).Inc()
	if payment.Status == models.PaymentStatusCompleted {
		util.PaymentsSettledTotal.WithLabelValues(string(payment.Gateway), "waived").Inc()
	}

	pl.logger.Info("Payment opened",
		zap.String("payment_id", payment.ID.String()),
		zap.String("listing_id", payment.ListingID.String()),
		zap.String("gateway", string(payment.Gateway)),
		zap.String("purpose", string(payment.Purpose)),
		zap.Int64("amount", payment.Amount),
		zap.String("status", string(payment.Status)))

	return payment, nil
}

// Settle moves a PENDING record to COMPLETED or FAILED. If the record is
// already terminal nothing is written and OutcomeAlreadyProcessed is returned.
func (pl *PaymentLedger) Settle(ctx context.Context, q store.Repository, req SettleRequest) (*SettleResult, error) {
	status := models.PaymentStatusFailed
	if req.Success {
		status = models.PaymentStatusCompleted
	}

	update := store.SettleUpdate{
		PaymentID: req.PaymentID,
		Status:    status,
		SettledAt: pl.clock.Now(),
	}
	if req.TxnID != "" {
		txnID := req.TxnID
		update.GatewayTxnID = &txnID
	}
	if !req.Success && req.Reason != "" {
		reason := req.Reason
		update.FailureReason = &reason
	}

	payment, err := q.SettlePayment(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}

	if payment == nil {
		current, err := q.GetPayment(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}
		pl.logger.Info("Payment already processed",
			zap.String("payment_id", req.PaymentID.String()),
			zap.String("status", string(current.Status)))
		return &SettleResult{Outcome: OutcomeAlreadyProcessed, Payment: current}, nil
	}

	result := "success"
	if !req.Success {
		result = "failed"
	}
	util.PaymentsSettledTotal.WithLabelValues(string(payment.Gateway), result).Inc()

	pl.logger.Info("Payment settled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(payment.Status)))

	return &SettleResult{Outcome: OutcomeApplied, Payment: payment}, nil
}

// MarkCompleted settles a payment as paid
func (pl *PaymentLedger) MarkCompleted(ctx context.Context, q store.Repository, paymentID uuid.UUID, txnID string) (*SettleResult, error) {
	return pl.Settle(ctx, q, SettleRequest{PaymentID: paymentID, Success: true, TxnID: txnID})
}

// MarkFailed settles a payment as failed
func (pl *PaymentLedger) MarkFailed(ctx context.Context, q store.Repository, paymentID uuid.UUID, reason string) (*SettleResult, error) {
	return pl.Settle(ctx, q, SettleRequest{PaymentID: paymentID, Reason: reason})
}
