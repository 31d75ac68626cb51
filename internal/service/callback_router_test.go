package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/service"
	"listing-service/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func gatewayRaw(p *models.PaymentRecord, success bool) gateway.RawCallback {
	return gateway.RawCallback{Query: testutil.CallbackQuery(p, success)}
}

// paidPost leaves a listing in PENDING_PAYMENT with a pending VIP 7 day record
func paidPost(t *testing.T, h *testutil.Harness) (*models.Listing, *models.PaymentRecord) {
	t.Helper()
	listing := h.CreateListing(t, 42, models.ListingStatusDraft)
	resp, err := h.Payments.ChoosePackage(context.Background(), listing.ID, &service.ChoosePackageRequest{
		PackageID: testutil.VIPID,
		OptionID:  uuidPtr(testutil.VIP7ID),
	}, "")
	require.NoError(t, err)
	return listing, h.Payment(t, resp.PaymentID)
}

// renewal opens a pending renewal record on an existing listing
func renewal(t *testing.T, h *testutil.Harness, l *models.Listing, req *service.RenewRequest) *models.PaymentRecord {
	t.Helper()
	resp, err := h.Payments.Renew(context.Background(), l.ID, req, "")
	require.NoError(t, err)
	return h.Payment(t, resp.PaymentID)
}

func setListing(t *testing.T, h *testutil.Harness, l *models.Listing) {
	t.Helper()
	current := h.Listing(t, l.ID)
	require.NoError(t, h.Store.UpdateListing(context.Background(), l, current.Status))
}

func TestCallbackSettlesFirstPost(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)

	res, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeApplied, res.Outcome)
	assert.Equal(t, service.FlowFirstPost, res.Flow)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusPendingReview, l.Status)
	assert.Equal(t, int64(150000), l.PostingFeeAccrued)

	stored := h.Payment(t, p.ID)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.GatewayTxnID)
	assert.Equal(t, "TXN-"+p.GatewayRef, *stored.GatewayTxnID)

	assert.Equal(t, 1, h.Publisher.SettledCount())
	assert.True(t, h.Cache.HasKey("callback:VNPAY:"+p.ID.String()))
}

func TestCallbackDuplicateDoesNotAccrueTwice(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)
	ctx := context.Background()

	_, err := h.Router.HandleCallback(ctx, models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)

	// redirect return and IPN both arrive; the dedupe key is lost in between
	h.Cache.Clear()
	res, err := h.Router.HandleCallback(ctx, models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAlreadyProcessed, res.Outcome)

	res, err = h.Router.HandleCallback(ctx, models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAlreadyProcessed, res.Outcome)
	assert.Nil(t, res.Listing)

	assert.Equal(t, int64(150000), h.Listing(t, listing.ID).PostingFeeAccrued)
	assert.Equal(t, 1, h.Publisher.SettledCount())
}

func TestCallbackConcurrentDeliveries(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)

	const deliveries = 10
	outcomes := make(chan service.SettleOutcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
			if assert.NoError(t, err) {
				outcomes <- res.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	applied := 0
	for o := range outcomes {
		if o == service.OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(150000), h.Listing(t, listing.ID).PostingFeeAccrued)
}

func TestCallbackRejectionsMutateNothing(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)
	ctx := context.Background()

	badSig := gatewayRaw(p, true)
	badSig.Query.Set("sig", "forged")
	_, err := h.Router.HandleCallback(ctx, models.GatewayVNPay, badSig)
	assert.True(t, models.IsDomainError(err, models.ErrCodeInvalidSignature))

	wrongAmount := gatewayRaw(p, true)
	wrongAmount.Query.Set("amount", "1000")
	_, err = h.Router.HandleCallback(ctx, models.GatewayVNPay, wrongAmount)
	assert.True(t, models.IsDomainError(err, models.ErrCodeAmountMismatch))

	unknown := gatewayRaw(p, true)
	unknown.Query.Set("ref", "VNPAY-"+uuid.NewString())
	_, err = h.Router.HandleCallback(ctx, models.GatewayVNPay, unknown)
	assert.True(t, models.IsDomainError(err, models.ErrCodePaymentNotFound))

	// right reference, wrong gateway
	_, err = h.Router.HandleCallback(ctx, models.GatewayPayOS, gatewayRaw(p, true))
	assert.True(t, models.IsDomainError(err, models.ErrCodePaymentNotFound))

	_, err = h.Router.HandleCallback(ctx, models.Gateway("MOMO"), gatewayRaw(p, true))
	assert.True(t, models.IsDomainError(err, models.ErrCodeUnsupportedGateway))

	assert.Equal(t, models.PaymentStatusPending, h.Payment(t, p.ID).Status)
	l := h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusPendingPayment, l.Status)
	assert.Zero(t, l.PostingFeeAccrued)
	assert.Zero(t, h.Publisher.SettledCount())
}

func TestCallbackFailureKeepsListingPayable(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)

	res, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, false))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeApplied, res.Outcome)

	stored := h.Payment(t, p.ID)
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "gateway response 24", *stored.FailureReason)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusPendingPayment, l.Status)
	assert.Zero(t, l.PostingFeeAccrued)

	// a late success for the same record cannot flip it
	res, err = h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAlreadyProcessed, res.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, h.Payment(t, p.ID).Status)
}

func TestCallbackAddonOnlyRenewal(t *testing.T) {
	h := testutil.NewHarness(t)
	now := testutil.Epoch

	listing := h.CreateListing(t, 42, models.ListingStatusActive)
	expires := now.Add(10 * day)
	listing.ExpiresAt = &expires
	setListing(t, h, listing)

	p := renewal(t, h, listing, &service.RenewRequest{AddonOptionID: uuidPtr(testutil.VIP5ID)})
	assert.Equal(t, int64(120000), p.Amount)

	res, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.FlowRenewal, res.Flow)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusActive, l.Status)
	assert.Equal(t, expires, *l.ExpiresAt)
	require.NotNil(t, l.FeaturedUntil)
	assert.Equal(t, now.Add(5*day), *l.FeaturedUntil)
	require.NotNil(t, l.PushedAt)
	assert.Equal(t, now, *l.PushedAt)
	assert.Nil(t, l.StartRenewalAt)
	assert.Len(t, h.Publisher.Renewals, 1)
}

func TestCallbackStandardRenewalFromExpired(t *testing.T) {
	h := testutil.NewHarness(t)
	listing := h.CreateListing(t, 42, models.ListingStatusExpired)
	expired := testutil.Epoch.Add(-3 * day)
	listing.ExpiresAt = &expired
	setListing(t, h, listing)

	p := renewal(t, h, listing, &service.RenewRequest{StandardPackageID: uuidPtr(testutil.StandardID)})

	h.Clock.Advance(time.Hour)
	now := h.Clock.Now()
	_, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusActive, l.Status)
	require.NotNil(t, l.StartRenewalAt)
	assert.Equal(t, now, *l.StartRenewalAt)
	assert.Equal(t, now.Add(30*day), *l.ExpiresAt)
	assert.Nil(t, l.PushedAt, "feed bump waits for the renewal job")

	released, err := h.Lifecycle.ReleaseRenewalBumps(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	l = h.Listing(t, listing.ID)
	require.NotNil(t, l.PushedAt)
	assert.Equal(t, now, *l.PushedAt)
	assert.Nil(t, l.StartRenewalAt)
}

func TestCallbackStandardRenewalExtendsFromCurrentExpiry(t *testing.T) {
	h := testutil.NewHarness(t)
	listing := h.CreateListing(t, 42, models.ListingStatusActive)
	expires := testutil.Epoch.Add(4 * day)
	listing.ExpiresAt = &expires
	setListing(t, h, listing)

	p := renewal(t, h, listing, &service.RenewRequest{
		StandardPackageID: uuidPtr(testutil.StandardID),
		AddonOptionID:     uuidPtr(testutil.VIP7ID),
	})
	_, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, expires.Add(30*day), *l.ExpiresAt)
	assert.Equal(t, expires, *l.StartRenewalAt)
	assert.Equal(t, testutil.Epoch.Add(7*day), *l.FeaturedUntil)

	released, err := h.Lifecycle.ReleaseRenewalBumps(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, released, "bump is not due before the old expiry")
}

func TestRenewalSettlesAfterPackageDeactivated(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	listing := h.CreateListing(t, 42, models.ListingStatusActive)
	expires := testutil.Epoch.Add(4 * day)
	listing.ExpiresAt = &expires
	setListing(t, h, listing)

	p := renewal(t, h, listing, &service.RenewRequest{
		StandardPackageID: uuidPtr(testutil.StandardID),
		AddonOptionID:     uuidPtr(testutil.VIP7ID),
	})

	h.Store.AddPackage(models.PackageOffer{ID: testutil.StandardID, Code: "STANDARD", Name: "Standard", BillingMode: models.BillingModeFixed, DurationDays: 30, Price: 50000})
	h.Store.AddPackage(models.PackageOffer{ID: testutil.VIPID, Code: "VIP", Name: "Featured", BillingMode: models.BillingModePerDay, IsFeatured: true})
	h.Cache.Clear()

	_, err := h.Catalog.Package(ctx, testutil.StandardID)
	assert.True(t, models.IsDomainError(err, models.ErrCodePackageNotFound))

	res, err := h.Router.HandleCallback(ctx, models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeApplied, res.Outcome)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, expires.Add(30*day), *l.ExpiresAt)
	assert.Equal(t, testutil.Epoch.Add(7*day), *l.FeaturedUntil)
	assert.Equal(t, models.PaymentStatusCompleted, h.Payment(t, p.ID).Status)
}

func TestHideWaitsForPendingRenewal(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	listing := h.CreateListing(t, 42, models.ListingStatusActive)
	expires := testutil.Epoch.Add(10 * day)
	listing.ExpiresAt = &expires
	setListing(t, h, listing)

	p := renewal(t, h, listing, &service.RenewRequest{StandardPackageID: uuidPtr(testutil.StandardID)})

	_, err := h.Lifecycle.Hide(ctx, listing.ID)
	assert.True(t, models.IsDomainError(err, models.ErrCodePaymentInProgress))
	assert.Equal(t, models.ListingStatusActive, h.Listing(t, listing.ID).Status)

	res, err := h.Router.HandleCallback(ctx, models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.FlowRenewal, res.Flow)

	l := h.Listing(t, listing.ID)
	assert.Equal(t, expires.Add(30*day), *l.ExpiresAt)
	assert.Equal(t, expires, *l.StartRenewalAt)

	l, err = h.Lifecycle.Hide(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusHidden, l.Status)
	assert.Equal(t, expires.Add(30*day), *l.ExpiresAt)
}

func TestCallbackRenewalFailure(t *testing.T) {
	tests := []struct {
		name   string
		status models.ListingStatus
	}{
		{name: "active listing stays active", status: models.ListingStatusActive},
		{name: "expired listing stays expired", status: models.ListingStatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness(t)
			listing := h.CreateListing(t, 42, tt.status)
			expires := testutil.Epoch.Add(2 * day)
			listing.ExpiresAt = &expires
			setListing(t, h, listing)

			p := renewal(t, h, listing, &service.RenewRequest{StandardPackageID: uuidPtr(testutil.StandardID)})
			_, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, false))
			require.NoError(t, err)

			l := h.Listing(t, listing.ID)
			assert.Equal(t, tt.status, l.Status)
			assert.Equal(t, expires, *l.ExpiresAt)
			assert.Nil(t, l.StartRenewalAt)
			assert.Equal(t, models.PaymentStatusFailed, h.Payment(t, p.ID).Status)
			assert.Empty(t, h.Publisher.Renewals)
		})
	}
}

func TestCallbackDedupeFastPath(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)

	require.NoError(t, h.Cache.SetIdempotencyKey(context.Background(), "callback:VNPAY:"+p.ID.String(), "COMPLETED", time.Hour))

	res, err := h.Router.HandleCallback(context.Background(), models.GatewayVNPay, gatewayRaw(p, true))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAlreadyProcessed, res.Outcome)
	assert.Equal(t, models.PaymentStatusPending, h.Payment(t, p.ID).Status)
	assert.Equal(t, models.ListingStatusPendingPayment, h.Listing(t, listing.ID).Status)
}

func TestSettleOutsidePaymentFlows(t *testing.T) {
	h := testutil.NewHarness(t)
	listing, p := paidPost(t, h)

	// moderation got there first through a fee-free path
	l := h.Listing(t, listing.ID)
	l.Status = models.ListingStatusRejected
	require.NoError(t, h.Store.UpdateListing(context.Background(), l, models.ListingStatusPendingPayment))

	res, err := h.Router.Settle(context.Background(), service.SettleRequest{PaymentID: p.ID, Success: true})
	require.NoError(t, err)
	assert.Equal(t, service.FlowNone, res.Flow)
	assert.Equal(t, models.PaymentStatusCompleted, h.Payment(t, p.ID).Status)

	l = h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusRejected, l.Status)
	assert.Zero(t, l.PostingFeeAccrued)
}
