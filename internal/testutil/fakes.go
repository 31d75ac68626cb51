package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"

	"github.com/google/uuid"
)

// FakeClock is a settable clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a clock at t
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakePublisher records published events
type FakePublisher struct {
	mu            sync.Mutex
	Settled       []*models.PaymentSettledEvent
	StatusChanges []*models.ListingStatusChangedEvent
	Renewals      []*models.ListingRenewedEvent
	Err           error
}

func (p *FakePublisher) PublishPaymentSettled(ctx context.Context, event *models.PaymentSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Settled = append(p.Settled, event)
	return p.Err
}

func (p *FakePublisher) PublishListingStatusChanged(ctx context.Context, event *models.ListingStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StatusChanges = append(p.StatusChanges, event)
	return p.Err
}

func (p *FakePublisher) PublishListingRenewed(ctx context.Context, event *models.ListingRenewedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Renewals = append(p.Renewals, event)
	return p.Err
}

// SettledCount returns how many PaymentSettled events were published
func (p *FakePublisher) SettledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Settled)
}

// FakeCache is an in-memory stand-in for the Redis client. It covers the
// idempotency keys, the JSON cache and the scheduler locks.
type FakeCache struct {
	mu    sync.Mutex
	keys  map[string]interface{}
	json  map[string][]byte
	locks map[string]string
	// Err, when set, is returned by every call
	Err error
}

// NewFakeCache creates an empty cache
func NewFakeCache() *FakeCache {
	return &FakeCache{
		keys:  map[string]interface{}{},
		json:  map[string][]byte{},
		locks: map[string]string{},
	}
}

func (c *FakeCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.keys[key] = value
	return nil
}

func (c *FakeCache) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return false, c.Err
	}
	_, ok := c.keys[key]
	return ok, nil
}

func (c *FakeCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return false, c.Err
	}
	raw, ok := c.json[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *FakeCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.json[key] = raw
	return nil
}

// HasKey reports whether an idempotency key was set
func (c *FakeCache) HasKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok
}

func (c *FakeCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	if _, held := c.locks[key]; held {
		return "", nil
	}
	token := uuid.New().String()
	c.locks[key] = token
	return token, nil
}

func (c *FakeCache) ReleaseLock(ctx context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[key] == token {
		delete(c.locks, key)
	}
	return c.Err
}

// Clear drops every idempotency key and cached document, as an eviction would
func (c *FakeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = map[string]interface{}{}
	c.json = map[string][]byte{}
}

// LockHeld reports whether key is currently locked
func (c *FakeCache) LockHeld(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.locks[key]
	return ok
}

// FakeGateway is a scriptable gateway.Client. Callbacks are plain query
// parameters: ref, amount, success, txn and sig (which must be "valid").
// A non-empty body is read as the same parameters, form encoded.
type FakeGateway struct {
	mu          sync.Mutex
	kind        models.Gateway
	InitiateErr error
	Initiated   []gateway.InitiateRequest
	// Statuses answers QueryStatus by gateway reference; a missing entry
	// means the gateway still considers the payment pending.
	Statuses map[string]*gateway.Status
	QueryErr error
}

// NewFakeGateway creates a fake client for kind
func NewFakeGateway(kind models.Gateway) *FakeGateway {
	return &FakeGateway{kind: kind, Statuses: map[string]*gateway.Status{}}
}

func (g *FakeGateway) Kind() models.Gateway { return g.kind }

func (g *FakeGateway) Reference(paymentID uuid.UUID) string {
	return fmt.Sprintf("%s-%s", g.kind, paymentID)
}

func (g *FakeGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Initiated = append(g.Initiated, req)
	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &gateway.InitiateResult{PaymentURL: "https://pay.example/" + req.Payment.GatewayRef}, nil
}

func (g *FakeGateway) ParseCallback(raw gateway.RawCallback) (*gateway.Callback, error) {
	q := raw.Query
	if len(raw.Body) > 0 {
		parsed, err := url.ParseQuery(string(raw.Body))
		if err != nil {
			return nil, models.NewDomainError(models.ErrCodeInvalidSignature, "bad body", err)
		}
		q = parsed
	}
	if q.Get("sig") != "valid" {
		return nil, models.ErrInvalidSignature
	}
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil {
		return nil, models.NewDomainError(models.ErrCodeInvalidSignature, "bad amount", err)
	}
	success := q.Get("success") == "true"
	code := "00"
	if !success {
		code = "24"
	}
	return &gateway.Callback{
		Gateway:      g.kind,
		Reference:    q.Get("ref"),
		Amount:       amount,
		Success:      success,
		TxnID:        q.Get("txn"),
		ResponseCode: code,
	}, nil
}

func (g *FakeGateway) QueryStatus(ctx context.Context, payment *models.PaymentRecord) (*gateway.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	if st, ok := g.Statuses[payment.GatewayRef]; ok {
		return st, nil
	}
	return &gateway.Status{}, nil
}

// InitiatedCount returns how many initiation calls were made
func (g *FakeGateway) InitiatedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Initiated)
}

// ErrUnavailable is a stand-in transport failure
var ErrUnavailable = errors.New("connection refused")
