package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus is the visibility state of a listing
type ListingStatus string

// Listing statuses
const (
	ListingStatusDraft          ListingStatus = "DRAFT"
	ListingStatusPendingPayment ListingStatus = "PENDING_PAYMENT"
	ListingStatusPendingReview  ListingStatus = "PENDING_REVIEW"
	ListingStatusActive         ListingStatus = "ACTIVE"
	ListingStatusRejected       ListingStatus = "REJECTED"
	ListingStatusExpired        ListingStatus = "EXPIRED"
	ListingStatusSold           ListingStatus = "SOLD"
	ListingStatusHidden         ListingStatus = "HIDDEN"
)

// Listing represents a vehicle or battery post
type Listing struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	SellerID          int64         `db:"seller_id" json:"seller_id"`
	Title             string        `db:"title" json:"title"`
	Status            ListingStatus `db:"status" json:"status"`
	PostingFeeAccrued int64         `db:"posting_fee_accrued" json:"posting_fee_accrued"`
	ExpiresAt         *time.Time    `db:"expires_at" json:"expires_at,omitempty"`
	FeaturedUntil     *time.Time    `db:"featured_until" json:"featured_until,omitempty"`
	StartRenewalAt    *time.Time    `db:"start_renewal_at" json:"start_renewal_at,omitempty"`
	PushedAt          *time.Time    `db:"pushed_at" json:"pushed_at,omitempty"`
	RejectReason      *string       `db:"reject_reason" json:"reject_reason,omitempty"`
	Version           int64         `db:"version" json:"version"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Gateway identifies the payment provider that created a record
type Gateway string

// Supported gateways
const (
	GatewayVNPay Gateway = "VNPAY"
	GatewayPayOS Gateway = "PAYOS"
)

// PaymentStatus of a payment record
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// PaymentPurpose tags what a payment was opened for. Audit only; routing
// is decided from the listing status at settlement time.
type PaymentPurpose string

const (
	PaymentPurposePost    PaymentPurpose = "POST"
	PaymentPurposeRenewal PaymentPurpose = "RENEWAL"
)

// PackageSelection is the resolved package/option tuple a payment was priced from
type PackageSelection struct {
	PackageID      *uuid.UUID `db:"package_id" json:"package_id,omitempty"`
	OptionID       *uuid.UUID `db:"option_id" json:"option_id,omitempty"`
	AddonPackageID *uuid.UUID `db:"addon_package_id" json:"addon_package_id,omitempty"`
	AddonOptionID  *uuid.UUID `db:"addon_option_id" json:"addon_option_id,omitempty"`
}

// PaymentRecord is an append-only ledger row for one money-movement attempt
type PaymentRecord struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	ListingID    uuid.UUID      `db:"listing_id" json:"listing_id"`
	Amount       int64          `db:"amount" json:"amount"`
	Currency     string         `db:"currency" json:"currency"`
	Status       PaymentStatus  `db:"status" json:"status"`
	Gateway      Gateway        `db:"gateway" json:"gateway"`
	GatewayRef   string         `db:"gateway_ref" json:"gateway_ref"`
	GatewayTxnID *string        `db:"gateway_txn_id" json:"gateway_txn_id,omitempty"`
	Purpose      PaymentPurpose `db:"purpose" json:"purpose"`
	PackageSelection
	RetryOf       *uuid.UUID `db:"retry_of" json:"retry_of,omitempty"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	SettledAt     *time.Time `db:"settled_at" json:"settled_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// BillingMode of a package offer
type BillingMode string

const (
	BillingModeFixed  BillingMode = "FIXED"
	BillingModePerDay BillingMode = "PER_DAY"
)

// PackageOffer is read-only catalog data
type PackageOffer struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	Code         string      `db:"code" json:"code"`
	Name         string      `db:"name" json:"name"`
	BillingMode  BillingMode `db:"billing_mode" json:"billing_mode"`
	DurationDays int         `db:"duration_days" json:"duration_days"`
	Price        int64       `db:"price" json:"price"`
	IsFeatured   bool        `db:"is_featured" json:"is_featured"`
	IsActive     bool        `db:"is_active" json:"is_active"`
}

// PackageOption is a duration choice under a PER_DAY package
type PackageOption struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PackageID    uuid.UUID `db:"package_id" json:"package_id"`
	DurationDays int       `db:"duration_days" json:"duration_days"`
	Price        int64     `db:"price" json:"price"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
