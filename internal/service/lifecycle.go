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

// LifecycleConfig holds the business constants of the listing state machine
type LifecycleConfig struct {
	ActiveDays   int
	StandardCode string
}

// ListingLifecycle owns every listing status transition. Each operation
// locks the listing row, applies one named transition and persists it with
// a guard on the prior status.
type ListingLifecycle struct {
	repo    store.Repository
	catalog *Catalog
	notify  *notifier
	clock   util.Clock
	cfg     LifecycleConfig
	logger  *zap.Logger
}

// NewListingLifecycle creates a new listing lifecycle service
func NewListingLifecycle(
	repo store.Repository,
	catalog *Catalog,
	publisher EventPublisher,
	clock util.Clock,
	cfg LifecycleConfig,
) *ListingLifecycle {
	logger := util.GetLogger()
	return &ListingLifecycle{
		repo:    repo,
		catalog: catalog,
		notify:  &notifier{publisher: publisher, clock: clock, logger: logger},
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// GetListing retrieves a listing by ID
func (ll *ListingLifecycle) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return ll.repo.GetListing(ctx, id)
}

// OnPaymentSettled applies a first-post settlement. Only a PENDING_PAYMENT
// listing is affected; a failure leaves it there so the seller can retry.
func (ll *ListingLifecycle) OnPaymentSettled(l *models.Listing, p *models.PaymentRecord, success bool) bool {
	if !l.ApplyPostPayment(p.Amount, success) {
		ll.logger.Info("Post payment settlement left listing unchanged",
			zap.String("listing_id", l.ID.String()),
			zap.String("payment_id", p.ID.String()),
			zap.String("status", string(l.Status)),
			zap.Bool("success", success))
		return false
	}
	return true
}

// OnRenewalSettled applies a renewal settlement to an ACTIVE or EXPIRED listing
func (ll *ListingLifecycle) OnRenewalSettled(ctx context.Context, l *models.Listing, p *models.PaymentRecord, success bool) (bool, error) {
	var eff models.RenewalEffect
	if success {
		var err error
		eff, err = ll.renewalEffect(ctx, p)
		if err != nil {
			return false, err
		}
	}

	changed, err := l.ApplyRenewal(ll.clock.Now(), eff, success)
	if err != nil {
		return false, err
	}
	if !success {
		ll.logger.Info("Renewal payment failed",
			zap.String("listing_id", l.ID.String()),
			zap.String("payment_id", p.ID.String()),
			zap.String("status", string(l.Status)))
	}
	return changed, nil
}

// renewalEffect derives bought days from the record's stored selection
func (ll *ListingLifecycle) renewalEffect(ctx context.Context, p *models.PaymentRecord) (models.RenewalEffect, error) {
	var eff models.RenewalEffect

	if p.PackageID != nil {
		pkg, err := ll.catalog.PurchasedPackage(ctx, *p.PackageID)
		if err != nil {
			return eff, err
		}
		if pkg.Code == ll.cfg.StandardCode {
			eff.StandardDays = pkg.DurationDays
		}
	}

	if p.AddonOptionID != nil {
		opt, err := ll.catalog.Option(ctx, *p.AddonOptionID)
		if err != nil {
			return eff, err
		}
		eff.AddonDays = opt.DurationDays
	} else if p.AddonPackageID != nil {
		pkg, err := ll.catalog.PurchasedPackage(ctx, *p.AddonPackageID)
		if err != nil {
			return eff, err
		}
		eff.AddonDays = pkg.DurationDays
	}

	return eff, nil
}

// Approve activates a listing waiting for moderation
func (ll *ListingLifecycle) Approve(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.Approve")
	defer span.End()

	return ll.mutate(ctx, listingID, "", func(q store.Repository, l *models.Listing) error {
		if l.Status != models.ListingStatusPendingReview {
			return models.ErrInvalidTransition
		}

		payment, err := q.GetLatestCompletedPayment(ctx, l.ID, models.PaymentPurposePost)
		if err != nil {
			return fmt.Errorf("failed to get completed payment: %w", err)
		}
		if payment == nil {
			return models.ErrNoCompletedPayment
		}

		featuredDays := 0
		if payment.OptionID != nil {
			opt, err := ll.catalog.Option(ctx, *payment.OptionID)
			if err != nil {
				return err
			}
			featuredDays = opt.DurationDays
		}

		return l.Approve(ll.clock.Now(), featuredDays, ll.cfg.ActiveDays)
	})
}

// Reject turns a listing down. Fees already paid are kept.
func (ll *ListingLifecycle) Reject(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.Reject")
	defer span.End()

	return ll.mutate(ctx, listingID, reason, func(_ store.Repository, l *models.Listing) error {
		if l.Status != models.ListingStatusPendingReview {
			return models.ErrInvalidTransition
		}
		return l.Reject(reason)
	})
}

// MarkSold closes an active listing once its sale contract is complete
func (ll *ListingLifecycle) MarkSold(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.MarkSold")
	defer span.End()

	return ll.mutate(ctx, listingID, "contract completed", func(_ store.Repository, l *models.Listing) error {
		return l.MarkSold()
	})
}

// Hide takes an active listing off the feed
func (ll *ListingLifecycle) Hide(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.Hide")
	defer span.End()

	return ll.mutate(ctx, listingID, "", func(q store.Repository, l *models.Listing) error {
		// a renewal settling while HIDDEN would have no listing to land on
		latest, err := q.GetLatestPayment(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("failed to get latest payment: %w", err)
		}
		if latest != nil && latest.Status == models.PaymentStatusPending {
			return models.ErrPaymentInProgress
		}
		return l.Hide()
	})
}

// Unhide puts a hidden listing back on the feed
func (ll *ListingLifecycle) Unhide(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.Unhide")
	defer span.End()

	return ll.mutate(ctx, listingID, "", func(_ store.Repository, l *models.Listing) error {
		return l.Unhide()
	})
}

// ExpireSweep moves ACTIVE listings past their expiry to EXPIRED and returns
// how many it moved. Listings that changed under it are skipped.
func (ll *ListingLifecycle) ExpireSweep(ctx context.Context, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.ExpireSweep")
	defer span.End()

	now := ll.clock.Now()
	ids, err := ll.repo.ListExpiredListingIDs(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired listings: %w", err)
	}

	expired := 0
	for _, id := range ids {
		_, err := ll.mutate(ctx, id, "expired", func(_ store.Repository, l *models.Listing) error {
			return l.Expire(now)
		})
		if err != nil {
			ll.logger.Warn("Failed to expire listing", zap.String("listing_id", id.String()), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// ReleaseRenewalBumps stamps the feed timestamp of listings whose deferred
// renewal instant has passed
func (ll *ListingLifecycle) ReleaseRenewalBumps(ctx context.Context, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.ReleaseRenewalBumps")
	defer span.End()

	now := ll.clock.Now()
	ids, err := ll.repo.ListDueRenewalBumpIDs(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due renewal bumps: %w", err)
	}

	released := 0
	for _, id := range ids {
		bumped := false
		err := ll.repo.InTx(ctx, func(q store.Repository) error {
			l, err := q.GetListingForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !l.ReleaseRenewalBump(now) {
				return nil
			}
			bumped = true
			return q.UpdateListing(ctx, l, l.Status)
		})
		if err != nil {
			ll.logger.Warn("Failed to release renewal bump", zap.String("listing_id", id.String()), zap.Error(err))
			continue
		}
		if bumped {
			released++
		}
	}
	return released, nil
}

// mutate runs fn against the locked listing and persists the result. The
// status change event goes out after commit.
func (ll *ListingLifecycle) mutate(
	ctx context.Context,
	listingID uuid.UUID,
	reason string,
	fn func(q store.Repository, l *models.Listing) error,
) (*models.Listing, error) {
	var (
		listing *models.Listing
		from    models.ListingStatus
	)

	err := ll.repo.InTx(ctx, func(q store.Repository) error {
		l, err := q.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		from = l.Status

		if err := fn(q, l); err != nil {
			return err
		}
		if err := q.UpdateListing(ctx, l, from); err != nil {
			return err
		}
		listing = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	ll.logger.Info("Listing transitioned",
		zap.String("listing_id", listing.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(listing.Status)))

	ll.notify.statusChanged(ctx, listing, from, reason)
	return listing, nil
}
