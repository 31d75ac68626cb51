package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []ListingStatus{
	ListingStatusDraft,
	ListingStatusPendingPayment,
	ListingStatusPendingReview,
	ListingStatusActive,
	ListingStatusRejected,
	ListingStatusExpired,
	ListingStatusSold,
	ListingStatusHidden,
}

func TestChoosePackage(t *testing.T) {
	l := &Listing{Status: ListingStatusDraft}
	require.NoError(t, l.ChoosePackage(150000))
	assert.Equal(t, ListingStatusPendingPayment, l.Status)

	l = &Listing{Status: ListingStatusDraft}
	require.NoError(t, l.ChoosePackage(0))
	assert.Equal(t, ListingStatusPendingReview, l.Status)

	for _, s := range allStatuses {
		if s == ListingStatusDraft {
			continue
		}
		l := &Listing{Status: s}
		err := l.ChoosePackage(100)
		assert.True(t, errors.Is(err, ErrListingNotDraft), "status %s", s)
		assert.Equal(t, s, l.Status)
	}
}

func TestApplyPostPayment(t *testing.T) {
	l := &Listing{Status: ListingStatusPendingPayment}
	assert.False(t, l.ApplyPostPayment(150000, false))
	assert.Equal(t, ListingStatusPendingPayment, l.Status)
	assert.Zero(t, l.PostingFeeAccrued)

	assert.True(t, l.ApplyPostPayment(150000, true))
	assert.Equal(t, ListingStatusPendingReview, l.Status)
	assert.Equal(t, int64(150000), l.PostingFeeAccrued)

	// second application is a no-op once the listing left PENDING_PAYMENT
	assert.False(t, l.ApplyPostPayment(150000, true))
	assert.Equal(t, int64(150000), l.PostingFeeAccrued)
}

func TestApproveRejectOnlyFromPendingReview(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, s := range allStatuses {
		if s == ListingStatusPendingReview {
			continue
		}
		l := &Listing{Status: s}
		assert.True(t, errors.Is(l.Approve(now, 7, 30), ErrInvalidTransition), "approve from %s", s)
		assert.Equal(t, s, l.Status)
		assert.True(t, errors.Is(l.Reject("spam"), ErrInvalidTransition), "reject from %s", s)
		assert.Equal(t, s, l.Status)
	}
}

func TestApprove(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	l := &Listing{Status: ListingStatusPendingReview}
	require.NoError(t, l.Approve(now, 7, 30))
	assert.Equal(t, ListingStatusActive, l.Status)
	require.NotNil(t, l.ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), *l.ExpiresAt)
	require.NotNil(t, l.FeaturedUntil)
	assert.Equal(t, now.Add(7*24*time.Hour), *l.FeaturedUntil)
	assert.Equal(t, now, *l.PushedAt)

	l = &Listing{Status: ListingStatusPendingReview}
	require.NoError(t, l.Approve(now, 0, 30))
	assert.Nil(t, l.FeaturedUntil)
}

func TestReject(t *testing.T) {
	l := &Listing{Status: ListingStatusPendingReview, PostingFeeAccrued: 150000}
	require.NoError(t, l.Reject("blurry photos"))
	assert.Equal(t, ListingStatusRejected, l.Status)
	assert.Equal(t, "blurry photos", *l.RejectReason)
	assert.Equal(t, int64(150000), l.PostingFeeAccrued)
}

func TestApplyRenewalAddonOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := now.Add(10 * 24 * time.Hour)
	l := &Listing{Status: ListingStatusActive, ExpiresAt: &expires}

	changed, err := l.ApplyRenewal(now, RenewalEffect{AddonDays: 5}, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, expires, *l.ExpiresAt)
	assert.Nil(t, l.StartRenewalAt)
	assert.Equal(t, now.Add(5*24*time.Hour), *l.FeaturedUntil)
	assert.Equal(t, now, *l.PushedAt)
	assert.Equal(t, ListingStatusActive, l.Status)
}

func TestApplyRenewalStandardFromExpired(t *testing.T) {
	expiredAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := expiredAt.Add(48 * time.Hour)
	l := &Listing{Status: ListingStatusExpired, ExpiresAt: &expiredAt}

	changed, err := l.ApplyRenewal(now, RenewalEffect{StandardDays: 30}, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, ListingStatusActive, l.Status)
	assert.Equal(t, now, *l.StartRenewalAt)
	assert.Equal(t, now.Add(30*24*time.Hour), *l.ExpiresAt)
	assert.Nil(t, l.PushedAt)
}

func TestApplyRenewalStandardExtendsFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := now.Add(3 * 24 * time.Hour)
	featured := now.Add(2 * 24 * time.Hour)
	l := &Listing{Status: ListingStatusActive, ExpiresAt: &expires, FeaturedUntil: &featured}

	_, err := l.ApplyRenewal(now, RenewalEffect{StandardDays: 30, AddonDays: 7}, true)
	require.NoError(t, err)
	assert.Equal(t, expires, *l.StartRenewalAt)
	assert.Equal(t, expires.Add(30*24*time.Hour), *l.ExpiresAt)
	assert.Equal(t, featured.Add(7*24*time.Hour), *l.FeaturedUntil)
}

func TestApplyRenewalFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	active := &Listing{Status: ListingStatusActive}
	changed, err := active.ApplyRenewal(now, RenewalEffect{AddonDays: 5}, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, ListingStatusActive, active.Status)

	expired := &Listing{Status: ListingStatusExpired}
	_, err = expired.ApplyRenewal(now, RenewalEffect{StandardDays: 30}, false)
	require.NoError(t, err)
	assert.Equal(t, ListingStatusExpired, expired.Status)

	sold := &Listing{Status: ListingStatusSold}
	_, err = sold.ApplyRenewal(now, RenewalEffect{StandardDays: 30}, true)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	l := &Listing{Status: ListingStatusActive, ExpiresAt: &future}
	assert.Error(t, l.Expire(now))
	assert.Equal(t, ListingStatusActive, l.Status)

	l.ExpiresAt = &past
	require.NoError(t, l.Expire(now))
	assert.Equal(t, ListingStatusExpired, l.Status)

	hidden := &Listing{Status: ListingStatusHidden, ExpiresAt: &past}
	assert.Error(t, hidden.Expire(now))
}

func TestMarkSoldAndVisibility(t *testing.T) {
	l := &Listing{Status: ListingStatusActive}
	require.NoError(t, l.Hide())
	assert.Equal(t, ListingStatusHidden, l.Status)
	assert.Error(t, l.MarkSold())
	require.NoError(t, l.Unhide())
	require.NoError(t, l.MarkSold())
	assert.Equal(t, ListingStatusSold, l.Status)
	assert.Error(t, l.MarkSold())
	assert.Error(t, l.Unhide())
}

func TestReleaseRenewalBump(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	l := &Listing{Status: ListingStatusActive, StartRenewalAt: &later}

	assert.False(t, l.ReleaseRenewalBump(now))
	assert.Nil(t, l.PushedAt)

	assert.True(t, l.ReleaseRenewalBump(later.Add(time.Minute)))
	assert.Equal(t, later, *l.PushedAt)
	assert.Nil(t, l.StartRenewalAt)
}
