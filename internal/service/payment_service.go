package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/store"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentConfig holds pricing and gateway settings for checkout
type PaymentConfig struct {
	Currency       string
	StandardCode   string
	FreeCode       string
	DefaultGateway models.Gateway
	GatewayTimeout time.Duration
}

// PaymentService opens payments for package choices, renewals and retries
type PaymentService struct {
	repo      store.Repository
	catalog   *Catalog
	ledger    *PaymentLedger
	lifecycle *ListingLifecycle
	gateways  gateway.Registry
	notify    *notifier
	clock     util.Clock
	cfg       PaymentConfig
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	repo store.Repository,
	catalog *Catalog,
	ledger *PaymentLedger,
	lifecycle *ListingLifecycle,
	gateways gateway.Registry,
	publisher EventPublisher,
	clock util.Clock,
	cfg PaymentConfig,
) *PaymentService {
	logger := util.GetLogger()
	return &PaymentService{
		repo:      repo,
		catalog:   catalog,
		ledger:    ledger,
		lifecycle: lifecycle,
		gateways:  gateways,
		notify:    &notifier{publisher: publisher, clock: clock, logger: logger},
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// ChoosePackageRequest represents a seller's package choice for a draft
type ChoosePackageRequest struct {
	PackageID     uuid.UUID  `json:"package_id" binding:"required"`
	OptionID      *uuid.UUID `json:"option_id,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
}

// RenewRequest represents a renewal of an active or expired listing
type RenewRequest struct {
	StandardPackageID *uuid.UUID `json:"standard_package_id,omitempty"`
	AddonPackageID    *uuid.UUID `json:"addon_package_id,omitempty"`
	AddonOptionID     *uuid.UUID `json:"addon_option_id,omitempty"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
}

// CheckoutResponse is returned by every operation that opens a payment
type CheckoutResponse struct {
	ListingID  uuid.UUID            `json:"listing_id"`
	PaymentID  uuid.UUID            `json:"payment_id"`
	Status     models.ListingStatus `json:"status"`
	Total      int64                `json:"total"`
	Currency   string               `json:"currency"`
	PaymentURL string               `json:"payment_url,omitempty"`
}

// ChoosePackage prices the chosen package and opens the first-post payment.
// A zero-priced choice goes straight to moderation without a gateway.
func (s *PaymentService) ChoosePackage(ctx context.Context, listingID uuid.UUID, req *ChoosePackageRequest, clientIP string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ChoosePackage")
	defer span.End()

	client, err := s.gatewayFor(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	pkg, err := s.catalog.Package(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	var opt *models.PackageOption
	if req.OptionID != nil {
		if opt, err = s.catalog.Option(ctx, *req.OptionID); err != nil {
			return nil, err
		}
	}
	var standard *models.PackageOffer
	if pkg.BillingMode == models.BillingModePerDay {
		if standard, err = s.catalog.PackageByCode(ctx, s.cfg.StandardCode); err != nil {
			return nil, err
		}
	}

	var (
		listing *models.Listing
		payment *models.PaymentRecord
		from    models.ListingStatus
	)

	err = s.repo.InTx(ctx, func(q store.Repository) error {
		l, err := q.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if l.Status != models.ListingStatusDraft {
			return models.ErrListingNotDraft
		}
		from = l.Status

		// two drafts racing for the free first post must see each other
		if err := q.LockSeller(ctx, l.SellerID); err != nil {
			return err
		}
		published, err := q.CountSellerPublishedListings(ctx, l.SellerID, l.ID)
		if err != nil {
			return fmt.Errorf("failed to count seller listings: %w", err)
		}

		quote, err := ResolvePrice(PriceInput{
			Package:         pkg,
			Option:          opt,
			StandardPackage: standard,
			FirstPost:       published == 0,
			FreeCode:        s.cfg.FreeCode,
		})
		if err != nil {
			return err
		}

		if err := s.ensureNoPendingPayment(ctx, q, l.ID); err != nil {
			return err
		}

		id := uuid.New()
		pkgID := quote.PackageID
		p, err := s.ledger.Open(ctx, q, OpenRequest{
			ID:         id,
			ListingID:  l.ID,
			Amount:     quote.Amount,
			Currency:   s.cfg.Currency,
			Gateway:    client.Kind(),
			GatewayRef: client.Reference(id),
			Purpose:    models.PaymentPurposePost,
			Selection:  models.PackageSelection{PackageID: &pkgID, OptionID: quote.OptionID},
		})
		if err != nil {
			return err
		}

		if err := l.ChoosePackage(p.Amount); err != nil {
			return err
		}
		if err := q.UpdateListing(ctx, l, from); err != nil {
			return err
		}

		listing, payment = l, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Package chosen",
		zap.String("listing_id", listing.ID.String()),
		zap.String("package", pkg.Code),
		zap.Int64("amount", payment.Amount))

	if payment.Status == models.PaymentStatusCompleted {
		s.notify.paymentSettled(ctx, payment)
	}
	s.notify.statusChanged(ctx, listing, from, "")
	return s.checkout(ctx, client, listing, payment, clientIP)
}

// Renew opens a renewal payment for an ACTIVE or EXPIRED listing. The add-on
// must be strictly shorter than the standard period when both are bought.
func (s *PaymentService) Renew(ctx context.Context, listingID uuid.UUID, req *RenewRequest, clientIP string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Renew")
	defer span.End()

	if req.StandardPackageID == nil && req.AddonPackageID == nil && req.AddonOptionID == nil {
		return nil, models.ErrNoOfferSelected
	}

	client, err := s.gatewayFor(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	baseFee, err := s.catalog.PackageByCode(ctx, s.cfg.StandardCode)
	if err != nil {
		return nil, err
	}

	var (
		selection models.PackageSelection
		amount    int64
		stdDays   int
	)

	if req.StandardPackageID != nil {
		std, err := s.catalog.Package(ctx, *req.StandardPackageID)
		if err != nil {
			return nil, err
		}
		if std.Code != s.cfg.StandardCode {
			return nil, models.ErrNotStandardPackage
		}
		quote, err := ResolvePrice(PriceInput{Package: std, StandardPackage: baseFee, FreeCode: s.cfg.FreeCode})
		if err != nil {
			return nil, err
		}
		pkgID := quote.PackageID
		selection.PackageID = &pkgID
		amount += quote.Amount
		stdDays = quote.DurationDays
	}

	if req.AddonPackageID != nil || req.AddonOptionID != nil {
		var addonOpt *models.PackageOption
		if req.AddonOptionID != nil {
			if addonOpt, err = s.catalog.Option(ctx, *req.AddonOptionID); err != nil {
				return nil, err
			}
		}
		addonPkgID := req.AddonPackageID
		if addonPkgID == nil {
			addonPkgID = &addonOpt.PackageID
		}
		addon, err := s.catalog.Package(ctx, *addonPkgID)
		if err != nil {
			return nil, err
		}
		quote, err := ResolvePrice(PriceInput{Package: addon, Option: addonOpt, StandardPackage: baseFee, FreeCode: s.cfg.FreeCode})
		if err != nil {
			return nil, err
		}
		if stdDays > 0 && quote.DurationDays >= stdDays {
			return nil, models.NewDomainError(models.ErrCodeAddonTooLong,
				fmt.Sprintf("addon lasts %d days, standard lasts %d", quote.DurationDays, stdDays), nil)
		}
		pkgID := quote.PackageID
		selection.AddonPackageID = &pkgID
		selection.AddonOptionID = quote.OptionID
		amount += quote.Amount
	}

	var (
		listing *models.Listing
		payment *models.PaymentRecord
		from    models.ListingStatus
	)

	err = s.repo.InTx(ctx, func(q store.Repository) error {
		l, err := q.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if err := l.CanRenew(); err != nil {
			return err
		}
		from = l.Status

		if err := s.ensureNoPendingPayment(ctx, q, l.ID); err != nil {
			return err
		}

		id := uuid.New()
		p, err := s.ledger.Open(ctx, q, OpenRequest{
			ID:         id,
			ListingID:  l.ID,
			Amount:     amount,
			Currency:   s.cfg.Currency,
			Gateway:    client.Kind(),
			GatewayRef: client.Reference(id),
			Purpose:    models.PaymentPurposeRenewal,
			Selection:  selection,
		})
		if err != nil {
			return err
		}

		if p.Status == models.PaymentStatusCompleted {
			changed, err := s.lifecycle.OnRenewalSettled(ctx, l, p, true)
			if err != nil {
				return err
			}
			if changed {
				if err := q.UpdateListing(ctx, l, from); err != nil {
					return err
				}
			}
		}

		listing, payment = l, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Renewal opened",
		zap.String("listing_id", listing.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("amount", payment.Amount))

	if payment.Status == models.PaymentStatusCompleted {
		s.notify.paymentSettled(ctx, payment)
		s.notify.statusChanged(ctx, listing, from, "")
		s.notify.renewed(ctx, listing)
	}
	return s.checkout(ctx, client, listing, payment, clientIP)
}

// Retry opens a new payment for the same selection and amount as a failed
// one. The failed record is left untouched.
func (s *PaymentService) Retry(ctx context.Context, paymentID uuid.UUID, clientIP string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Retry")
	defer span.End()

	failed, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if failed.Status != models.PaymentStatusFailed {
		return nil, models.NewDomainError(models.ErrCodePaymentNotRetryable,
			fmt.Sprintf("payment %s is %s", failed.ID, failed.Status), nil)
	}

	client, err := s.gateways.Get(failed.Gateway)
	if err != nil {
		return nil, err
	}

	var (
		listing *models.Listing
		payment *models.PaymentRecord
	)

	err = s.repo.InTx(ctx, func(q store.Repository) error {
		l, err := q.GetListingForUpdate(ctx, failed.ListingID)
		if err != nil {
			return err
		}

		latest, err := q.GetLatestPayment(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("failed to get latest payment: %w", err)
		}
		if latest == nil || latest.ID != failed.ID {
			return models.ErrPaymentNotRetryable
		}

		switch failed.Purpose {
		case models.PaymentPurposePost:
			if l.Status != models.ListingStatusPendingPayment {
				return models.ErrInvalidTransition
			}
		case models.PaymentPurposeRenewal:
			if err := l.CanRenew(); err != nil {
				return err
			}
		}

		id := uuid.New()
		retryOf := failed.ID
		p, err := s.ledger.Open(ctx, q, OpenRequest{
			ID:         id,
			ListingID:  l.ID,
			Amount:     failed.Amount,
			Currency:   failed.Currency,
			Gateway:    client.Kind(),
			GatewayRef: client.Reference(id),
			Purpose:    failed.Purpose,
			Selection:  failed.PackageSelection,
			RetryOf:    &retryOf,
		})
		if err != nil {
			return err
		}

		listing, payment = l, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment retried",
		zap.String("failed_payment_id", failed.ID.String()),
		zap.String("payment_id", payment.ID.String()))

	return s.checkout(ctx, client, listing, payment, clientIP)
}

// GetPayment retrieves a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments retrieves a listing's payment history, newest first
func (s *PaymentService) ListPayments(ctx context.Context, listingID uuid.UUID) ([]models.PaymentRecord, error) {
	return s.repo.ListPaymentsByListing(ctx, listingID)
}

func (s *PaymentService) ensureNoPendingPayment(ctx context.Context, q store.Repository, listingID uuid.UUID) error {
	latest, err := q.GetLatestPayment(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to get latest payment: %w", err)
	}
	if latest != nil && latest.Status == models.PaymentStatusPending {
		return models.ErrPaymentInProgress
	}
	return nil
}

func (s *PaymentService) gatewayFor(method string) (gateway.Client, error) {
	kind := s.cfg.DefaultGateway
	if method != "" {
		kind = models.Gateway(strings.ToUpper(method))
	}
	return s.gateways.Get(kind)
}

// checkout asks the gateway for a payment URL once the record is committed.
// If the gateway is unreachable the record stays PENDING.
func (s *PaymentService) checkout(
	ctx context.Context,
	client gateway.Client,
	listing *models.Listing,
	payment *models.PaymentRecord,
	clientIP string,
) (*CheckoutResponse, error) {
	resp := &CheckoutResponse{
		ListingID: listing.ID,
		PaymentID: payment.ID,
		Status:    listing.Status,
		Total:     payment.Amount,
		Currency:  payment.Currency,
	}
	if payment.Status != models.PaymentStatusPending {
		return resp, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	result, err := client.Initiate(initCtx, gateway.InitiateRequest{
		Payment:     payment,
		Description: fmt.Sprintf("Thanh toan tin dang %s", payment.GatewayRef),
		ClientIP:    clientIP,
	})
	util.GatewayInitiateLatency.WithLabelValues(string(client.Kind())).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayInitiateFailures.WithLabelValues(string(client.Kind())).Inc()
		s.logger.Error("Payment initiation failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("gateway", string(client.Kind())),
			zap.Error(err))
		if models.IsDomainError(err, models.ErrCodeGatewayUnavailable) {
			return nil, err
		}
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable, "payment gateway unavailable", err)
	}

	resp.PaymentURL = result.PaymentURL
	return resp, nil
}
