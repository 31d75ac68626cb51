package gateway

import (
	"context"
	"fmt"
	"net/url"

	"listing-service/internal/models"

	"github.com/google/uuid"
)

// Callback is a verified gateway notification in canonical form
type Callback struct {
	Gateway      models.Gateway
	Reference    string
	Amount       int64
	Success      bool
	TxnID        string
	ResponseCode string
	Message      string
}

// RawCallback is an unverified notification as received over HTTP
type RawCallback struct {
	Query url.Values
	Body  []byte
}

// InitiateRequest asks a gateway for a checkout URL
type InitiateRequest struct {
	Payment     *models.PaymentRecord
	Description string
	ClientIP    string
}

// InitiateResult carries where to send the buyer
type InitiateResult struct {
	PaymentURL string
}

// Client is implemented once per payment provider
type Client interface {
	Kind() models.Gateway
	// Reference derives the correlation id handed to the gateway. It must be
	// deterministic for a given payment id.
	Reference(paymentID uuid.UUID) string
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// ParseCallback verifies and decodes a notification. Verification
	// failures return a trust-kind domain error.
	ParseCallback(raw RawCallback) (*Callback, error)
}

// Status is the gateway's view of a payment
type Status struct {
	Terminal bool
	Success  bool
	Amount   int64
	TxnID    string
	Reason   string
}

// StatusQuerier is implemented by gateways that can be polled
type StatusQuerier interface {
	QueryStatus(ctx context.Context, payment *models.PaymentRecord) (*Status, error)
}

// Registry looks up clients by gateway tag
type Registry map[models.Gateway]Client

// NewRegistry indexes clients by their Kind
func NewRegistry(clients ...Client) Registry {
	r := make(Registry, len(clients))
	for _, c := range clients {
		r[c.Kind()] = c
	}
	return r
}

// Get returns the client for kind
func (r Registry) Get(kind models.Gateway) (Client, error) {
	c, ok := r[kind]
	if !ok {
		return nil, models.NewDomainError(models.ErrCodeUnsupportedGateway, fmt.Sprintf("unsupported gateway: %s", kind), nil)
	}
	return c, nil
}
