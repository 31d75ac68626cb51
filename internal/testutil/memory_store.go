package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"listing-service/internal/models"
	"listing-service/internal/store"

	"github.com/google/uuid"
)

type catalogData struct {
	mu       sync.RWMutex
	packages map[uuid.UUID]models.PackageOffer
	options  map[uuid.UUID]models.PackageOption
}

type memData struct {
	listings     map[uuid.UUID]models.Listing
	payments     map[uuid.UUID]models.PaymentRecord
	paymentOrder []uuid.UUID
	events       map[string]string
}

func (d *memData) clone() *memData {
	c := &memData{
		listings:     make(map[uuid.UUID]models.Listing, len(d.listings)),
		payments:     make(map[uuid.UUID]models.PaymentRecord, len(d.payments)),
		paymentOrder: append([]uuid.UUID(nil), d.paymentOrder...),
		events:       make(map[string]string, len(d.events)),
	}
	for k, v := range d.listings {
		c.listings[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	return c
}

// MemoryStore is an in-memory store.Repository. Transactions run one at a
// time against a copy of the data that is swapped in on commit and dropped
// on error, which gives the same all-or-nothing and row-lock behaviour the
// service relies on from Postgres. Catalog data sits outside transactions
// so it can be read while one is open, as with a second pool connection.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memData
	inTx bool

	catalog *catalogData

	// Now stamps created_at/updated_at
	Now func() time.Time
}

var _ store.Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		data: &memData{
			listings: map[uuid.UUID]models.Listing{},
			payments: map[uuid.UUID]models.PaymentRecord{},
			events:   map[string]string{},
		},
		catalog: &catalogData{
			packages: map[uuid.UUID]models.PackageOffer{},
			options:  map[uuid.UUID]models.PackageOption{},
		},
		Now: time.Now,
	}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx runs fn against a private copy of the data
func (s *MemoryStore) InTx(ctx context.Context, fn func(store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{mu: s.mu, data: s.data.clone(), inTx: true, catalog: s.catalog, Now: s.Now}
	if err := fn(tx); err != nil {
		return err
	}
	*s.data = *tx.data
	return nil
}

// AddPackage seeds a catalog package
func (s *MemoryStore) AddPackage(pkg models.PackageOffer) {
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()
	s.catalog.packages[pkg.ID] = pkg
}

// AddOption seeds a catalog option
func (s *MemoryStore) AddOption(opt models.PackageOption) {
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()
	s.catalog.options[opt.ID] = opt
}

// PaymentCount returns the number of payment records ever created
func (s *MemoryStore) PaymentCount() int {
	defer s.lock()()
	return len(s.data.payments)
}

func (s *MemoryStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	defer s.lock()()
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	if _, ok := s.data.listings[listing.ID]; ok {
		return fmt.Errorf("duplicate listing %s", listing.ID)
	}
	now := s.Now()
	listing.CreatedAt, listing.UpdatedAt = now, now
	s.data.listings[listing.ID] = *listing
	return nil
}

func (s *MemoryStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	defer s.lock()()
	l, ok := s.data.listings[id]
	if !ok {
		return nil, models.NewDomainError(models.ErrCodeListingNotFound, fmt.Sprintf("listing not found: %s", id), nil)
	}
	return &l, nil
}

func (s *MemoryStore) GetListingForUpdate(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.GetListing(ctx, id)
}

func (s *MemoryStore) UpdateListing(ctx context.Context, listing *models.Listing, expected models.ListingStatus) error {
	defer s.lock()()
	current, ok := s.data.listings[listing.ID]
	if !ok || current.Status != expected {
		return models.ErrConcurrentModification
	}
	listing.Version = current.Version + 1
	listing.UpdatedAt = s.Now()
	s.data.listings[listing.ID] = *listing
	return nil
}

// LockSeller is a no-op: InTx already runs transactions one at a time
func (s *MemoryStore) LockSeller(ctx context.Context, sellerID int64) error {
	return nil
}

func (s *MemoryStore) CountSellerPublishedListings(ctx context.Context, sellerID int64, exclude uuid.UUID) (int, error) {
	defer s.lock()()
	n := 0
	for id, l := range s.data.listings {
		if l.SellerID == sellerID && id != exclude && l.Status != models.ListingStatusDraft {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListExpiredListingIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	defer s.lock()()
	var ids []uuid.UUID
	for id, l := range s.data.listings {
		if len(ids) >= limit {
			break
		}
		if l.Status == models.ListingStatusActive && l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) ListDueRenewalBumpIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	defer s.lock()()
	var ids []uuid.UUID
	for id, l := range s.data.listings {
		if len(ids) >= limit {
			break
		}
		if l.StartRenewalAt != nil && !l.StartRenewalAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) CreatePayment(ctx context.Context, payment *models.PaymentRecord) error {
	defer s.lock()()
	for _, p := range s.data.payments {
		if p.Gateway == payment.Gateway && p.GatewayRef == payment.GatewayRef {
			return fmt.Errorf("duplicate gateway reference %s/%s", payment.Gateway, payment.GatewayRef)
		}
		if p.ListingID == payment.ListingID && p.Status == models.PaymentStatusPending &&
			payment.Status == models.PaymentStatusPending {
			return fmt.Errorf("listing %s already has a pending payment", payment.ListingID)
		}
	}
	now := s.Now()
	payment.CreatedAt, payment.UpdatedAt = now, now
	s.data.payments[payment.ID] = *payment
	s.data.paymentOrder = append(s.data.paymentOrder, payment.ID)
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	defer s.lock()()
	p, ok := s.data.payments[id]
	if !ok {
		return nil, models.NewDomainError(models.ErrCodePaymentNotFound, fmt.Sprintf("payment not found: %s", id), nil)
	}
	return &p, nil
}

func (s *MemoryStore) GetPaymentByGatewayRef(ctx context.Context, gateway models.Gateway, ref string) (*models.PaymentRecord, error) {
	defer s.lock()()
	for _, p := range s.data.payments {
		if p.Gateway == gateway && p.GatewayRef == ref {
			found := p
			return &found, nil
		}
	}
	return nil, models.NewDomainError(models.ErrCodePaymentNotFound,
		fmt.Sprintf("payment not found for %s ref %s", gateway, ref), nil)
}

func (s *MemoryStore) GetLatestPayment(ctx context.Context, listingID uuid.UUID) (*models.PaymentRecord, error) {
	defer s.lock()()
	for i := len(s.data.paymentOrder) - 1; i >= 0; i-- {
		p := s.data.payments[s.data.paymentOrder[i]]
		if p.ListingID == listingID {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetLatestCompletedPayment(ctx context.Context, listingID uuid.UUID, purpose models.PaymentPurpose) (*models.PaymentRecord, error) {
	defer s.lock()()
	for i := len(s.data.paymentOrder) - 1; i >= 0; i-- {
		p := s.data.payments[s.data.paymentOrder[i]]
		if p.ListingID == listingID && p.Status == models.PaymentStatusCompleted && p.Purpose == purpose {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListPaymentsByListing(ctx context.Context, listingID uuid.UUID) ([]models.PaymentRecord, error) {
	defer s.lock()()
	var out []models.PaymentRecord
	for i := len(s.data.paymentOrder) - 1; i >= 0; i-- {
		p := s.data.payments[s.data.paymentOrder[i]]
		if p.ListingID == listingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) SettlePayment(ctx context.Context, update store.SettleUpdate) (*models.PaymentRecord, error) {
	defer s.lock()()
	p, ok := s.data.payments[update.PaymentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return nil, nil
	}
	p.Status = update.Status
	if update.GatewayTxnID != nil {
		p.GatewayTxnID = update.GatewayTxnID
	}
	p.FailureReason = update.FailureReason
	settledAt := update.SettledAt
	p.SettledAt = &settledAt
	p.UpdatedAt = s.Now()
	s.data.payments[p.ID] = p
	return &p, nil
}

func (s *MemoryStore) ListPendingPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	defer s.lock()()
	var out []models.PaymentRecord
	for _, id := range s.data.paymentOrder {
		if len(out) >= limit {
			break
		}
		if p := s.data.payments[id]; p.Status == models.PaymentStatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetPackage(ctx context.Context, id uuid.UUID) (*models.PackageOffer, error) {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	pkg, ok := s.catalog.packages[id]
	if !ok {
		return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package not found: %s", id), nil)
	}
	return &pkg, nil
}

func (s *MemoryStore) GetPackageByCode(ctx context.Context, code string) (*models.PackageOffer, error) {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	for _, pkg := range s.catalog.packages {
		if pkg.Code == code {
			found := pkg
			return &found, nil
		}
	}
	return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package not found: %s", code), nil)
}

func (s *MemoryStore) GetOption(ctx context.Context, id uuid.UUID) (*models.PackageOption, error) {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	opt, ok := s.catalog.options[id]
	if !ok {
		return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package option not found: %s", id), nil)
	}
	return &opt, nil
}

func (s *MemoryStore) ListPackages(ctx context.Context) ([]models.PackageOffer, error) {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	out := make([]models.PackageOffer, 0, len(s.catalog.packages))
	for _, pkg := range s.catalog.packages {
		out = append(out, pkg)
	}
	return out, nil
}

func (s *MemoryStore) ListOptions(ctx context.Context) ([]models.PackageOption, error) {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	out := make([]models.PackageOption, 0, len(s.catalog.options))
	for _, opt := range s.catalog.options {
		out = append(out, opt)
	}
	return out, nil
}

func (s *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer s.lock()()
	_, ok := s.data.events[eventID]
	return ok, nil
}

func (s *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	defer s.lock()()
	s.data.events[eventID] = eventType
	return nil
}
