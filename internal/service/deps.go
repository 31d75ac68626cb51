package service

import (
	"context"
	"time"

	"listing-service/internal/models"
)

// Cache is the slice of the Redis client the services rely on
type Cache interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// EventPublisher sends notification events to the listing topic
type EventPublisher interface {
	PublishPaymentSettled(ctx context.Context, event *models.PaymentSettledEvent) error
	PublishListingStatusChanged(ctx context.Context, event *models.ListingStatusChangedEvent) error
	PublishListingRenewed(ctx context.Context, event *models.ListingRenewedEvent) error
}
