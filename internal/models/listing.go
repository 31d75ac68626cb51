package models

import (
	"time"
)

const day = 24 * time.Hour

// RenewalEffect describes what a settled renewal payment bought
type RenewalEffect struct {
	// StandardDays > 0 when the payment included the standard package.
	StandardDays int
	AddonDays    int
}

// ChoosePackage moves a draft into the payment or review queue
func (l *Listing) ChoosePackage(amount int64) error {
	if l.Status != ListingStatusDraft {
		return ErrListingNotDraft
	}
	if amount > 0 {
		return l.transition(ListingStatusPendingPayment)
	}
	return l.transition(ListingStatusPendingReview)
}

// ApplyPostPayment settles a first-post payment against the listing.
// It reports whether the listing changed; anything but PENDING_PAYMENT is
// left untouched.
func (l *Listing) ApplyPostPayment(amount int64, success bool) bool {
	if l.Status != ListingStatusPendingPayment || !success {
		return false
	}
	l.PostingFeeAccrued += amount
	l.Status = ListingStatusPendingReview
	return true
}

// Approve activates a reviewed listing
func (l *Listing) Approve(now time.Time, featuredDays, activeDays int) error {
	if l.Status != ListingStatusPendingReview {
		return ErrInvalidTransition
	}
	l.Status = ListingStatusActive
	if featuredDays > 0 {
		featured := now.Add(time.Duration(featuredDays) * day)
		l.FeaturedUntil = &featured
	} else {
		l.FeaturedUntil = nil
	}
	expires := now.Add(time.Duration(activeDays) * day)
	l.ExpiresAt = &expires
	pushed := now
	l.PushedAt = &pushed
	l.RejectReason = nil
	return nil
}

// Reject turns down a reviewed listing. The accrued fee is kept.
func (l *Listing) Reject(reason string) error {
	if err := l.transition(ListingStatusRejected); err != nil {
		return err
	}
	l.RejectReason = &reason
	return nil
}

// CanRenew checks the renewal precondition without mutating anything
func (l *Listing) CanRenew() error {
	if l.Status != ListingStatusActive && l.Status != ListingStatusExpired {
		return ErrInvalidTransition
	}
	return nil
}

// ApplyRenewal settles a renewal payment and reports whether the listing changed.
//
// A failed renewal never demotes an ACTIVE listing. A standard renewal extends
// the expiry from max(now, expiresAt) and defers the feed bump to that base
// instant; an addon-only renewal bumps the feed immediately.
func (l *Listing) ApplyRenewal(now time.Time, eff RenewalEffect, success bool) (bool, error) {
	if err := l.CanRenew(); err != nil {
		return false, err
	}
	if !success {
		if l.Status == ListingStatusActive {
			return false, nil
		}
		l.Status = ListingStatusExpired
		return false, nil
	}

	if eff.StandardDays > 0 {
		base := laterOf(now, l.ExpiresAt)
		expires := base.Add(time.Duration(eff.StandardDays) * day)
		l.ExpiresAt = &expires
		l.StartRenewalAt = &base
	} else {
		pushed := now
		l.PushedAt = &pushed
	}

	if eff.AddonDays > 0 {
		base := laterOf(now, l.FeaturedUntil)
		featured := base.Add(time.Duration(eff.AddonDays) * day)
		l.FeaturedUntil = &featured
	}

	l.Status = ListingStatusActive
	return true, nil
}

// Expire moves an active listing past its expiry to EXPIRED
func (l *Listing) Expire(now time.Time) error {
	if l.ExpiresAt == nil || l.ExpiresAt.After(now) {
		return ErrInvalidTransition
	}
	return l.transition(ListingStatusExpired)
}

// MarkSold closes an active listing after a completed contract
func (l *Listing) MarkSold() error {
	return l.transition(ListingStatusSold)
}

func (l *Listing) Hide() error {
	return l.transition(ListingStatusHidden)
}

func (l *Listing) Unhide() error {
	if l.Status != ListingStatusHidden {
		return ErrInvalidTransition
	}
	return l.transition(ListingStatusActive)
}

// ReleaseRenewalBump stamps the feed-ordering timestamp once the deferred
// renewal instant has been reached.
func (l *Listing) ReleaseRenewalBump(now time.Time) bool {
	if l.StartRenewalAt == nil || l.StartRenewalAt.After(now) {
		return false
	}
	pushed := *l.StartRenewalAt
	l.PushedAt = &pushed
	l.StartRenewalAt = nil
	return true
}

func (l *Listing) transition(target ListingStatus) error {
	if err := l.canTransitionTo(target); err != nil {
		return err
	}
	l.Status = target
	return nil
}

func (l *Listing) canTransitionTo(target ListingStatus) error {
	switch l.Status {
	case ListingStatusDraft:
		return allow(target, ListingStatusPendingPayment, ListingStatusPendingReview)
	case ListingStatusPendingPayment:
		return allow(target, ListingStatusPendingReview)
	case ListingStatusPendingReview:
		return allow(target, ListingStatusActive, ListingStatusRejected)
	case ListingStatusActive:
		return allow(target, ListingStatusActive, ListingStatusExpired, ListingStatusSold, ListingStatusHidden)
	case ListingStatusExpired:
		return allow(target, ListingStatusActive)
	case ListingStatusHidden:
		return allow(target, ListingStatusActive)
	case ListingStatusRejected, ListingStatusSold:
		return ErrInvalidTransition
	}
	return ErrInvalidTransition
}

func allow(target ListingStatus, allowed ...ListingStatus) error {
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return ErrInvalidTransition
}

func laterOf(now time.Time, t *time.Time) time.Time {
	if t != nil && t.After(now) {
		return *t
	}
	return now
}
