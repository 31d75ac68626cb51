package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"listing-service/internal/api"
	"listing-service/internal/models"
	"listing-service/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultURL = "http://localhost:3000/payment/result"

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func newServer(t *testing.T, checks map[string]api.Pinger, rps float64, burst int) (*testutil.Harness, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := testutil.NewHarness(t)
	handler := api.NewHandler(h.Payments, h.Lifecycle, h.Router, h.Catalog, checks, api.HandlerConfig{
		FrontendResultURL: resultURL,
		CallbackRateLimit: rps,
		CallbackBurst:     burst,
	})
	t.Cleanup(handler.Close)

	router := gin.New()
	handler.SetupRoutes(router)
	return h, router
}

func setup(t *testing.T) (*testutil.Harness, *gin.Engine) {
	return newServer(t, map[string]api.Pinger{"postgres": pinger{}}, 1000, 1000)
}

func do(r *gin.Engine, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func choose(t *testing.T, h *testutil.Harness, r *gin.Engine, body string) (*models.Listing, map[string]interface{}) {
	t.Helper()
	listing := h.CreateListing(t, 5, models.ListingStatusDraft)
	w := do(r, http.MethodPost, "/api/v1/payments/package/"+listing.ID.String(), "application/json", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return listing, decode(t, w)
}

func vipBody() string {
	return `{"package_id":"` + testutil.VIPID.String() + `","option_id":"` + testutil.VIP7ID.String() + `"}`
}

func TestChoosePackageEndpoint(t *testing.T) {
	h, r := setup(t)

	_, resp := choose(t, h, r, vipBody())
	assert.Equal(t, float64(150000), resp["total"])
	assert.Equal(t, string(models.ListingStatusPendingPayment), resp["status"])
	assert.NotEmpty(t, resp["payment_url"])
}

func TestChoosePackageEndpointErrors(t *testing.T) {
	h, r := setup(t)
	draft := h.CreateListing(t, 5, models.ListingStatusDraft)
	active := h.CreateListing(t, 5, models.ListingStatusActive)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed listing id", "/api/v1/payments/package/not-a-uuid", vipBody(), http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing package", "/api/v1/payments/package/" + draft.ID.String(), `{}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"option required", "/api/v1/payments/package/" + draft.ID.String(), `{"package_id":"` + testutil.VIPID.String() + `"}`, http.StatusBadRequest, "OPTION_REQUIRED"},
		{"not a draft", "/api/v1/payments/package/" + active.ID.String(), vipBody(), http.StatusBadRequest, "LISTING_NOT_DRAFT"},
		{"unknown listing", "/api/v1/payments/package/" + uuid.NewString(), vipBody(), http.StatusNotFound, "LISTING_NOT_FOUND"},
		{"unknown package", "/api/v1/payments/package/" + draft.ID.String(), `{"package_id":"` + uuid.NewString() + `"}`, http.StatusNotFound, "PACKAGE_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w)["error"])
		})
	}
}

func TestChoosePackageGatewayDown(t *testing.T) {
	h, r := setup(t)
	h.VNPay.InitiateErr = testutil.ErrUnavailable
	listing := h.CreateListing(t, 5, models.ListingStatusDraft)

	w := do(r, http.MethodPost, "/api/v1/payments/package/"+listing.ID.String(), "application/json", vipBody())
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "GATEWAY_UNAVAILABLE", decode(t, w)["error"])
}

func TestRenewEndpointConflict(t *testing.T) {
	h, r := setup(t)
	listing := h.CreateListing(t, 5, models.ListingStatusActive)
	body := `{"standard_package_id":"` + testutil.StandardID.String() + `"}`

	w := do(r, http.MethodPost, "/api/v1/payments/renew/"+listing.ID.String(), "application/json", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(50000), decode(t, w)["total"])

	w = do(r, http.MethodPost, "/api/v1/payments/renew/"+listing.ID.String(), "application/json", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PAYMENT_IN_PROGRESS", decode(t, w)["error"])
}

func paymentOf(t *testing.T, h *testutil.Harness, resp map[string]interface{}) *models.PaymentRecord {
	t.Helper()
	id, err := uuid.Parse(resp["payment_id"].(string))
	require.NoError(t, err)
	return h.Payment(t, id)
}

func TestVNPayIPN(t *testing.T) {
	h, r := setup(t)
	listing, resp := choose(t, h, r, vipBody())
	p := paymentOf(t, h, resp)

	ipn := func(q url.Values) map[string]interface{} {
		w := do(r, http.MethodGet, "/api/v1/payments/redirect-gateway/ipn?"+q.Encode(), "", "")
		require.Equal(t, http.StatusOK, w.Code)
		return decode(t, w)
	}

	forged := testutil.CallbackQuery(p, true)
	forged.Set("sig", "nope")
	assert.Equal(t, "97", ipn(forged)["RspCode"])

	short := testutil.CallbackQuery(p, true)
	short.Set("amount", "100")
	assert.Equal(t, "04", ipn(short)["RspCode"])

	unknown := testutil.CallbackQuery(p, true)
	unknown.Set("ref", "VNPAY-"+uuid.NewString())
	assert.Equal(t, "01", ipn(unknown)["RspCode"])

	assert.Equal(t, "00", ipn(testutil.CallbackQuery(p, true))["RspCode"])
	assert.Equal(t, "00", ipn(testutil.CallbackQuery(p, true))["RspCode"])

	l := h.Listing(t, listing.ID)
	assert.Equal(t, models.ListingStatusPendingReview, l.Status)
	assert.Equal(t, int64(150000), l.PostingFeeAccrued)
}

func TestVNPayIPNFormPost(t *testing.T) {
	h, r := setup(t)
	_, resp := choose(t, h, r, vipBody())
	p := paymentOf(t, h, resp)

	w := do(r, http.MethodPost, "/api/v1/payments/redirect-gateway/ipn", "application/x-www-form-urlencoded",
		testutil.CallbackQuery(p, false).Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "00", decode(t, w)["RspCode"])
	assert.Equal(t, models.PaymentStatusFailed, h.Payment(t, p.ID).Status)
}

func TestVNPayReturnRedirects(t *testing.T) {
	h, r := setup(t)
	listing, resp := choose(t, h, r, vipBody())
	p := paymentOf(t, h, resp)

	redirect := func(q url.Values) url.Values {
		w := do(r, http.MethodGet, "/api/v1/payments/redirect-gateway/return?"+q.Encode(), "", "")
		require.Equal(t, http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(loc.String(), resultURL))
		return loc.Query()
	}

	forged := testutil.CallbackQuery(p, true)
	forged.Set("sig", "nope")
	got := redirect(forged)
	assert.Equal(t, "error", got.Get("status"))
	assert.Equal(t, "INVALID_SIGNATURE", got.Get("code"))

	got = redirect(testutil.CallbackQuery(p, true))
	assert.Equal(t, "success", got.Get("status"))
	assert.Equal(t, p.ID.String(), got.Get("payment_id"))
	assert.Equal(t, listing.ID.String(), got.Get("listing_id"))

	// the IPN arriving afterwards is acknowledged without a second settlement
	w := do(r, http.MethodGet, "/api/v1/payments/redirect-gateway/ipn?"+testutil.CallbackQuery(p, true).Encode(), "", "")
	assert.Equal(t, "00", decode(t, w)["RspCode"])
	assert.Equal(t, int64(150000), h.Listing(t, listing.ID).PostingFeeAccrued)
	assert.Equal(t, 1, h.Publisher.SettledCount())
}

func TestPayOSWebhook(t *testing.T) {
	h, r := setup(t)
	listing, resp := choose(t, h, r, `{"package_id":"`+testutil.StandardID.String()+`","payment_method":"payos"}`)
	p := paymentOf(t, h, resp)

	webhook := func(q url.Values) *httptest.ResponseRecorder {
		return do(r, http.MethodPost, "/api/v1/payments/webhook-gateway/ipn", "application/json", q.Encode())
	}

	forged := testutil.CallbackQuery(p, true)
	forged.Set("sig", "nope")
	w := webhook(forged)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "01", decode(t, w)["code"])

	unknown := testutil.CallbackQuery(p, true)
	unknown.Set("ref", "PAYOS-"+uuid.NewString())
	w = webhook(unknown)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i := 0; i < 2; i++ {
		w = webhook(testutil.CallbackQuery(p, true))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, map[string]interface{}{"code": "00", "desc": "success"}, decode(t, w))
	}
	assert.Equal(t, int64(50000), h.Listing(t, listing.ID).PostingFeeAccrued)
}

func TestListingEndpoints(t *testing.T) {
	h, r := setup(t)
	listing, resp := choose(t, h, r, vipBody())
	p := paymentOf(t, h, resp)
	do(r, http.MethodGet, "/api/v1/payments/redirect-gateway/ipn?"+testutil.CallbackQuery(p, true).Encode(), "", "")

	base := "/api/v1/listings/" + listing.ID.String()

	w := do(r, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.ListingStatusPendingReview), decode(t, w)["status"])

	w = do(r, http.MethodGet, base+"/payments", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["payments"], 1)

	w = do(r, http.MethodGet, "/api/v1/payments/"+p.ID.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.PaymentStatusCompleted), decode(t, w)["status"])

	w = do(r, http.MethodPost, base+"/reject", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/approve", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(models.ListingStatusActive), decode(t, w)["status"])

	w = do(r, http.MethodPost, base+"/approve", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE_FOR_TRANSITION", decode(t, w)["error"])

	w = do(r, http.MethodPost, base+"/hide", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.ListingStatusHidden), decode(t, w)["status"])

	w = do(r, http.MethodPost, base+"/unhide", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.ListingStatusActive), decode(t, w)["status"])

	w = do(r, http.MethodGet, "/api/v1/listings/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPackagesEndpoint(t *testing.T) {
	_, r := setup(t)
	w := do(r, http.MethodGet, "/api/v1/packages", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["packages"], 4)
	assert.Len(t, body["options"], 3)
}

func TestHealthAndReadiness(t *testing.T) {
	_, r := newServer(t, map[string]api.Pinger{
		"postgres": pinger{},
		"redis":    pinger{err: errors.New("dial tcp: connection refused")},
	}, 1000, 1000)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "", "").Code)

	w := do(r, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	failed := decode(t, w)["failed"].(map[string]interface{})
	assert.Contains(t, failed, "redis")
	assert.NotContains(t, failed, "postgres")
}

func TestCallbackRateLimit(t *testing.T) {
	_, r := newServer(t, nil, 0.001, 2)
	path := "/api/v1/payments/redirect-gateway/ipn"

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, path, "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, path, "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, path, "", "").Code)

	// seller routes are not throttled
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/listings/"+uuid.NewString(), "", "").Code)
}
