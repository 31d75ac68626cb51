package testutil

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/service"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Catalog fixture ids
var (
	FreeID     = uuid.MustParse("6f1c2f0e-0d51-4b9e-9d49-6c0f5c3d0a01")
	StandardID = uuid.MustParse("6f1c2f0e-0d51-4b9e-9d49-6c0f5c3d0a02")
	VIPID      = uuid.MustParse("6f1c2f0e-0d51-4b9e-9d49-6c0f5c3d0a03")
	BasicID    = uuid.MustParse("6f1c2f0e-0d51-4b9e-9d49-6c0f5c3d0a04")

	VIP5ID  = uuid.MustParse("9a7e4c11-5b0f-4f3e-8d7a-2f4b1e0c0b05")
	VIP7ID  = uuid.MustParse("9a7e4c11-5b0f-4f3e-8d7a-2f4b1e0c0b07")
	VIP30ID = uuid.MustParse("9a7e4c11-5b0f-4f3e-8d7a-2f4b1e0c0b30")
)

// Epoch is the instant every harness clock starts at
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// SeedCatalog loads the package fixture. VIP for 7 days costs
// 100000 + 50000 base fee = 150000.
func SeedCatalog(s *MemoryStore) {
	s.AddPackage(models.PackageOffer{ID: FreeID, Code: "FREE", Name: "First post free", BillingMode: models.BillingModeFixed, DurationDays: 30, Price: 20000, IsActive: true})
	s.AddPackage(models.PackageOffer{ID: StandardID, Code: "STANDARD", Name: "Standard", BillingMode: models.BillingModeFixed, DurationDays: 30, Price: 50000, IsActive: true})
	s.AddPackage(models.PackageOffer{ID: VIPID, Code: "VIP", Name: "Featured", BillingMode: models.BillingModePerDay, IsFeatured: true, IsActive: true})
	s.AddPackage(models.PackageOffer{ID: BasicID, Code: "BASIC", Name: "Basic", BillingMode: models.BillingModeFixed, DurationDays: 15, Price: 30000, IsActive: true})

	s.AddOption(models.PackageOption{ID: VIP5ID, PackageID: VIPID, DurationDays: 5, Price: 70000})
	s.AddOption(models.PackageOption{ID: VIP7ID, PackageID: VIPID, DurationDays: 7, Price: 100000})
	s.AddOption(models.PackageOption{ID: VIP30ID, PackageID: VIPID, DurationDays: 30, Price: 350000})
}

// Harness wires the service layer over in-memory fakes
type Harness struct {
	Store     *MemoryStore
	Cache     *FakeCache
	Publisher *FakePublisher
	Clock     *FakeClock
	VNPay     *FakeGateway
	PayOS     *FakeGateway
	Gateways  gateway.Registry

	Catalog   *service.Catalog
	Ledger    *service.PaymentLedger
	Lifecycle *service.ListingLifecycle
	Payments  *service.PaymentService
	Router    *service.CallbackRouter
}

// NewHarness builds a fresh harness with the catalog fixture loaded
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	util.GetTracer()

	h := &Harness{
		Store:     NewMemoryStore(),
		Cache:     NewFakeCache(),
		Publisher: &FakePublisher{},
		Clock:     NewFakeClock(Epoch),
		VNPay:     NewFakeGateway(models.GatewayVNPay),
		PayOS:     NewFakeGateway(models.GatewayPayOS),
	}
	h.Store.Now = h.Clock.Now
	SeedCatalog(h.Store)
	h.Gateways = gateway.NewRegistry(h.VNPay, h.PayOS)

	h.Catalog = service.NewCatalog(h.Store, h.Cache, time.Minute)
	h.Ledger = service.NewPaymentLedger(h.Clock)
	h.Lifecycle = service.NewListingLifecycle(h.Store, h.Catalog, h.Publisher, h.Clock, service.LifecycleConfig{
		ActiveDays:   30,
		StandardCode: "STANDARD",
	})
	h.Payments = service.NewPaymentService(h.Store, h.Catalog, h.Ledger, h.Lifecycle, h.Gateways, h.Publisher, h.Clock, service.PaymentConfig{
		Currency:       "VND",
		StandardCode:   "STANDARD",
		FreeCode:       "FREE",
		DefaultGateway: models.GatewayVNPay,
		GatewayTimeout: time.Second,
	})
	h.Router = service.NewCallbackRouter(h.Store, h.Ledger, h.Lifecycle, h.Gateways, h.Cache, h.Publisher, h.Clock, time.Hour)
	return h
}

// CreateListing inserts a listing for seller in the given status
func (h *Harness) CreateListing(t *testing.T, sellerID int64, status models.ListingStatus) *models.Listing {
	t.Helper()
	l := &models.Listing{ID: uuid.New(), SellerID: sellerID, Title: "VinFast VF e34 2022", Status: status}
	require.NoError(t, h.Store.CreateListing(context.Background(), l))
	return l
}

// Listing reloads a listing
func (h *Harness) Listing(t *testing.T, id uuid.UUID) *models.Listing {
	t.Helper()
	l, err := h.Store.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l
}

// Payment reloads a payment
func (h *Harness) Payment(t *testing.T, id uuid.UUID) *models.PaymentRecord {
	t.Helper()
	p, err := h.Store.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

// CallbackQuery builds a notification the fake gateways accept for p
func CallbackQuery(p *models.PaymentRecord, success bool) url.Values {
	q := url.Values{}
	q.Set("ref", p.GatewayRef)
	q.Set("amount", strconv.FormatInt(p.Amount, 10))
	q.Set("success", strconv.FormatBool(success))
	q.Set("txn", "TXN-"+p.GatewayRef)
	q.Set("sig", "valid")
	return q
}
