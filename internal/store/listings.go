package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"listing-service/internal/models"

	"github.com/google/uuid"
)

const listingColumns = `id, seller_id, title, status, posting_fee_accrued, expires_at, featured_until,
	start_renewal_at, pushed_at, reject_reason, version, created_at, updated_at`

// CreateListing inserts a listing row
func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	query := `
		INSERT INTO listings (id, seller_id, title, status, posting_fee_accrued)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at`

	return s.q.GetContext(ctx, listing, query,
		listing.ID, listing.SellerID, listing.Title, listing.Status, listing.PostingFeeAccrued)
}

// GetListing retrieves a listing by ID
func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.getListing(ctx, "SELECT "+listingColumns+" FROM listings WHERE id = $1", id)
}

// GetListingForUpdate retrieves a listing and row-locks it until the
// surrounding transaction ends
func (s *Store) GetListingForUpdate(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.getListing(ctx, "SELECT "+listingColumns+" FROM listings WHERE id = $1 FOR UPDATE", id)
}

func (s *Store) getListing(ctx context.Context, query string, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := s.q.GetContext(ctx, &listing, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.ErrCodeListingNotFound, fmt.Sprintf("listing not found: %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// UpdateListing persists the mutable listing columns with a status guard
func (s *Store) UpdateListing(ctx context.Context, listing *models.Listing, expected models.ListingStatus) error {
	query := `
		UPDATE listings
		SET status = $1, posting_fee_accrued = $2, expires_at = $3, featured_until = $4,
			start_renewal_at = $5, pushed_at = $6, reject_reason = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $8 AND status = $9
		RETURNING version, updated_at`

	err := s.q.GetContext(ctx, listing, query,
		listing.Status, listing.PostingFeeAccrued, listing.ExpiresAt, listing.FeaturedUntil,
		listing.StartRenewalAt, listing.PushedAt, listing.RejectReason,
		listing.ID, expected)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrConcurrentModification
	}
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return nil
}

// LockSeller takes a transaction-scoped advisory lock on the seller
func (s *Store) LockSeller(ctx context.Context, sellerID int64) error {
	if _, err := s.q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", sellerID); err != nil {
		return fmt.Errorf("failed to lock seller: %w", err)
	}
	return nil
}

// CountSellerPublishedListings counts a seller's listings that have left DRAFT
func (s *Store) CountSellerPublishedListings(ctx context.Context, sellerID int64, exclude uuid.UUID) (int, error) {
	var count int
	err := s.q.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM listings WHERE seller_id = $1 AND id <> $2 AND status <> $3",
		sellerID, exclude, models.ListingStatusDraft)
	if err != nil {
		return 0, fmt.Errorf("failed to count seller listings: %w", err)
	}
	return count, nil
}

// ListExpiredListingIDs returns active listings whose expiry has passed
func (s *Store) ListExpiredListingIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.q.SelectContext(ctx, &ids,
		"SELECT id FROM listings WHERE status = $1 AND expires_at <= $2 ORDER BY expires_at LIMIT $3",
		models.ListingStatusActive, now, limit)
	return ids, err
}

// ListDueRenewalBumpIDs returns listings whose deferred feed bump is due
func (s *Store) ListDueRenewalBumpIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.q.SelectContext(ctx, &ids,
		"SELECT id FROM listings WHERE start_renewal_at IS NOT NULL AND start_renewal_at <= $1 ORDER BY start_renewal_at LIMIT $2",
		now, limit)
	return ids, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
