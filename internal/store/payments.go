package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"listing-service/internal/models"

	"github.com/google/uuid"
)

const paymentColumns = `id, listing_id, amount, currency, status, gateway, gateway_ref, gateway_txn_id, purpose,
	package_id, option_id, addon_package_id, addon_option_id, retry_of, failure_reason, settled_at,
	created_at, updated_at`

// CreatePayment inserts a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.PaymentRecord) error {
	query := `
		INSERT INTO payments (id, listing_id, amount, currency, status, gateway, gateway_ref, purpose,
			package_id, option_id, addon_package_id, addon_option_id, retry_of, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := s.q.GetContext(ctx, payment, query,
		payment.ID, payment.ListingID, payment.Amount, payment.Currency, payment.Status,
		payment.Gateway, payment.GatewayRef, payment.Purpose,
		payment.PackageID, payment.OptionID, payment.AddonPackageID, payment.AddonOptionID,
		payment.RetryOf, payment.SettledAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID
func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := s.q.GetContext(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.ErrCodePaymentNotFound, fmt.Sprintf("payment not found: %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetPaymentByGatewayRef resolves a payment from the gateway's correlation id
func (s *Store) GetPaymentByGatewayRef(ctx context.Context, gateway models.Gateway, ref string) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := s.q.GetContext(ctx, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE gateway = $1 AND gateway_ref = $2", gateway, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.ErrCodePaymentNotFound,
			fmt.Sprintf("payment not found for %s ref %s", gateway, ref), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by gateway ref: %w", err)
	}
	return &payment, nil
}

// GetLatestPayment retrieves the most recent payment for a listing
func (s *Store) GetLatestPayment(ctx context.Context, listingID uuid.UUID) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := s.q.GetContext(ctx, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE listing_id = $1 ORDER BY created_at DESC LIMIT 1", listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment: %w", err)
	}
	return &payment, nil
}

// GetLatestCompletedPayment retrieves the most recent completed payment of a purpose
func (s *Store) GetLatestCompletedPayment(ctx context.Context, listingID uuid.UUID, purpose models.PaymentPurpose) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := s.q.GetContext(ctx, &payment,
		"SELECT "+paymentColumns+` FROM payments
		WHERE listing_id = $1 AND status = $2 AND purpose = $3
		ORDER BY settled_at DESC LIMIT 1`,
		listingID, models.PaymentStatusCompleted, purpose)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completed payment: %w", err)
	}
	return &payment, nil
}

// ListPaymentsByListing retrieves a listing's payment history, newest first
func (s *Store) ListPaymentsByListing(ctx context.Context, listingID uuid.UUID) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord
	err := s.q.SelectContext(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE listing_id = $1 ORDER BY created_at DESC", listingID)
	return payments, err
}

// SettlePayment is a compare-and-set from PENDING to a terminal status
func (s *Store) SettlePayment(ctx context.Context, update SettleUpdate) (*models.PaymentRecord, error) {
	query := `
		UPDATE payments
		SET status = $1, gateway_txn_id = COALESCE($2, gateway_txn_id), failure_reason = $3,
			settled_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
		RETURNING ` + paymentColumns

	var payment models.PaymentRecord
	err := s.q.GetContext(ctx, &payment, query,
		update.Status, update.GatewayTxnID, update.FailureReason, update.SettledAt,
		update.PaymentID, models.PaymentStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	return &payment, nil
}

// ListPendingPayments retrieves the oldest non-terminal payments
func (s *Store) ListPendingPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord
	err := s.q.SelectContext(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE status = $1 ORDER BY created_at LIMIT $2",
		models.PaymentStatusPending, limit)
	return payments, err
}
