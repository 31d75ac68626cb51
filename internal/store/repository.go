package store

import (
	"context"
	"time"

	"listing-service/internal/models"

	"github.com/google/uuid"
)

// Repository is the persistence surface used by the service layer.
// Lookups by id return a NOT_FOUND domain error when the row is missing;
// "latest" lookups return nil, nil instead.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	GetListingForUpdate(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	// UpdateListing writes the mutable listing columns only if the stored
	// status still equals expected.
	UpdateListing(ctx context.Context, listing *models.Listing, expected models.ListingStatus) error
	// LockSeller serializes first-post pricing for one seller until the
	// surrounding transaction ends.
	LockSeller(ctx context.Context, sellerID int64) error
	CountSellerPublishedListings(ctx context.Context, sellerID int64, exclude uuid.UUID) (int, error)
	ListExpiredListingIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListDueRenewalBumpIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	CreatePayment(ctx context.Context, payment *models.PaymentRecord) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	GetPaymentByGatewayRef(ctx context.Context, gateway models.Gateway, ref string) (*models.PaymentRecord, error)
	GetLatestPayment(ctx context.Context, listingID uuid.UUID) (*models.PaymentRecord, error)
	GetLatestCompletedPayment(ctx context.Context, listingID uuid.UUID, purpose models.PaymentPurpose) (*models.PaymentRecord, error)
	ListPaymentsByListing(ctx context.Context, listingID uuid.UUID) ([]models.PaymentRecord, error)
	// SettlePayment moves a PENDING record to a terminal status. It returns
	// nil, nil when the record was already terminal.
	SettlePayment(ctx context.Context, update SettleUpdate) (*models.PaymentRecord, error)
	ListPendingPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error)

	GetPackage(ctx context.Context, id uuid.UUID) (*models.PackageOffer, error)
	GetPackageByCode(ctx context.Context, code string) (*models.PackageOffer, error)
	GetOption(ctx context.Context, id uuid.UUID) (*models.PackageOption, error)
	ListPackages(ctx context.Context) ([]models.PackageOffer, error)
	ListOptions(ctx context.Context) ([]models.PackageOption, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// SettleUpdate is the terminal write applied by SettlePayment
type SettleUpdate struct {
	PaymentID     uuid.UUID
	Status        models.PaymentStatus
	GatewayTxnID  *string
	FailureReason *string
	SettledAt     time.Time
}
