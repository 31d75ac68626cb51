package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypePaymentSettled       = "PAYMENT_SETTLED"
	EventTypeListingStatusChanged = "LISTING_STATUS_CHANGED"
	EventTypeListingRenewed       = "LISTING_RENEWED"
	EventTypeModerationDecided    = "MODERATION_DECIDED"
	EventTypeContractCompleted    = "CONTRACT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string, now time.Time) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

// PaymentSettledEvent published once a payment reaches a terminal status
type PaymentSettledEvent struct {
	BaseEvent
	PaymentID uuid.UUID      `json:"payment_id"`
	ListingID uuid.UUID      `json:"listing_id"`
	Gateway   Gateway        `json:"gateway"`
	Purpose   PaymentPurpose `json:"purpose"`
	Amount    int64          `json:"amount"`
	Success   bool           `json:"success"`
	Reason    string         `json:"reason,omitempty"`
}

// ListingStatusChangedEvent published on every listing status transition
type ListingStatusChangedEvent struct {
	BaseEvent
	ListingID uuid.UUID     `json:"listing_id"`
	SellerID  int64         `json:"seller_id"`
	From      ListingStatus `json:"from"`
	To        ListingStatus `json:"to"`
	Reason    string        `json:"reason,omitempty"`
}

// ListingRenewedEvent published when a renewal payment is applied
type ListingRenewedEvent struct {
	BaseEvent
	ListingID      uuid.UUID  `json:"listing_id"`
	SellerID       int64      `json:"seller_id"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	FeaturedUntil  *time.Time `json:"featured_until,omitempty"`
	StartRenewalAt *time.Time `json:"start_renewal_at,omitempty"`
}

// ModerationDecidedEvent consumed from the moderation topic
type ModerationDecidedEvent struct {
	BaseEvent
	ListingID   uuid.UUID `json:"listing_id"`
	Approved    bool      `json:"approved"`
	Reason      string    `json:"reason,omitempty"`
	ModeratorID int64     `json:"moderator_id,omitempty"`
}

// ContractCompletedEvent consumed from the contract-signing integration
type ContractCompletedEvent struct {
	BaseEvent
	ListingID  uuid.UUID `json:"listing_id"`
	DocumentID string    `json:"document_id"`
}
