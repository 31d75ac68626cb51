package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"listing-service/config"
	"listing-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayOS(baseURL string) *PayOSClient {
	return NewPayOSClient(config.PayOSConfig{
		ClientID:    "client-id",
		APIKey:      "api-key",
		ChecksumKey: "checksum-key",
		BaseURL:     baseURL,
		ReturnURL:   "http://localhost:3000/payment/result",
		CancelURL:   "http://localhost:3000/payment/result",
	}, 2*time.Second)
}

func signedWebhook(t *testing.T, c *PayOSClient, orderCode string, amount int64, code string) []byte {
	t.Helper()
	data := map[string]interface{}{
		"orderCode":            json.Number(orderCode),
		"amount":               amount,
		"description":          "VQRIO123",
		"accountNumber":        "12345678",
		"reference":            "TF230204212323",
		"transactionDateTime":  "2026-03-01 10:00:00",
		"currency":             "VND",
		"paymentLinkId":        "124c33293c43417ab7879e14c8d9eb18",
		"code":                 code,
		"desc":                 "Thành công",
		"counterAccountBankId": nil,
		"counterAccountName":   nil,
		"virtualAccountName":   "",
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	flat, err := flattenJSON(raw)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"code":      "00",
		"desc":      "success",
		"success":   true,
		"data":      json.RawMessage(raw),
		"signature": c.signer.Sign(flat),
	})
	require.NoError(t, err)
	return body
}

func TestPayOSReferenceFitsSafeInteger(t *testing.T) {
	c := newTestPayOS("http://unused")
	for i := 0; i < 100; i++ {
		id := uuid.New()
		ref := c.Reference(id)
		n, err := strconv.ParseUint(ref, 10, 64)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, uint64(1<<53-1))
		assert.Equal(t, ref, c.Reference(id))
	}
}

func TestPayOSInitiate(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "client-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"checkoutUrl":"https://pay.payos.vn/web/abc","paymentLinkId":"abc"}}`))
	}))
	defer srv.Close()

	c := newTestPayOS(srv.URL)
	payment := &models.PaymentRecord{ID: uuid.New(), Amount: 150000, GatewayRef: "123456789"}

	res, err := c.Initiate(context.Background(), InitiateRequest{Payment: payment, Description: "Thanh toan tin dang xe dien"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.payos.vn/web/abc", res.PaymentURL)

	assert.Equal(t, float64(123456789), received["orderCode"])
	assert.Equal(t, float64(150000), received["amount"])
	assert.Len(t, received["description"], payosMaxDescription)

	expected := c.signer.Sign(map[string]string{
		"amount":      "150000",
		"cancelUrl":   "http://localhost:3000/payment/result",
		"description": received["description"].(string),
		"orderCode":   "123456789",
		"returnUrl":   "http://localhost:3000/payment/result",
	})
	assert.Equal(t, expected, received["signature"])
}

func TestPayOSInitiateSurfacesGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"231","desc":"order code already exists"}`))
	}))
	defer srv.Close()

	c := newTestPayOS(srv.URL)
	_, err := c.Initiate(context.Background(), InitiateRequest{Payment: &models.PaymentRecord{Amount: 1, GatewayRef: "1"}})
	assert.True(t, models.IsDomainError(err, models.ErrCodeGatewayUnavailable))
}

func TestPayOSInitiateTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestPayOS(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Initiate(ctx, InitiateRequest{Payment: &models.PaymentRecord{Amount: 1, GatewayRef: "1"}})
	assert.True(t, models.IsDomainError(err, models.ErrCodeGatewayUnavailable))
}

func TestPayOSQueryStatus(t *testing.T) {
	responses := map[string]string{
		"1": `{"code":"00","desc":"success","data":{"orderCode":1,"amount":150000,"amountPaid":150000,"status":"PAID","transactions":[{"reference":"FT123"}]}}`,
		"2": `{"code":"00","desc":"success","data":{"orderCode":2,"amount":150000,"amountPaid":0,"status":"CANCELLED","cancellationReason":"buyer cancelled","transactions":[]}}`,
		"3": `{"code":"00","desc":"success","data":{"orderCode":3,"amount":150000,"amountPaid":0,"status":"PENDING","transactions":[]}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Path[len("/v2/payment-requests/"):]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responses[code]))
	}))
	defer srv.Close()

	c := newTestPayOS(srv.URL)

	paid, err := c.QueryStatus(context.Background(), &models.PaymentRecord{GatewayRef: "1"})
	require.NoError(t, err)
	assert.True(t, paid.Terminal)
	assert.True(t, paid.Success)
	assert.Equal(t, "FT123", paid.TxnID)

	cancelled, err := c.QueryStatus(context.Background(), &models.PaymentRecord{GatewayRef: "2"})
	require.NoError(t, err)
	assert.True(t, cancelled.Terminal)
	assert.False(t, cancelled.Success)
	assert.Equal(t, "buyer cancelled", cancelled.Reason)

	pending, err := c.QueryStatus(context.Background(), &models.PaymentRecord{GatewayRef: "3"})
	require.NoError(t, err)
	assert.False(t, pending.Terminal)
}

func TestPayOSParseCallback(t *testing.T) {
	c := newTestPayOS("http://unused")

	cb, err := c.ParseCallback(RawCallback{Body: signedWebhook(t, c, "987654321", 150000, "00")})
	require.NoError(t, err)
	assert.Equal(t, models.GatewayPayOS, cb.Gateway)
	assert.Equal(t, "987654321", cb.Reference)
	assert.Equal(t, int64(150000), cb.Amount)
	assert.True(t, cb.Success)
	assert.Equal(t, "TF230204212323", cb.TxnID)

	cb, err = c.ParseCallback(RawCallback{Body: signedWebhook(t, c, "987654321", 150000, "01")})
	require.NoError(t, err)
	assert.False(t, cb.Success)
}

func TestPayOSParseCallbackRejectsBadSignature(t *testing.T) {
	c := newTestPayOS("http://unused")
	other := NewPayOSClient(config.PayOSConfig{ChecksumKey: "wrong"}, time.Second)

	_, err := c.ParseCallback(RawCallback{Body: signedWebhook(t, other, "1", 150000, "00")})
	assert.True(t, models.IsDomainError(err, models.ErrCodeInvalidSignature))

	_, err = c.ParseCallback(RawCallback{Body: []byte("not json")})
	assert.True(t, models.IsDomainError(err, models.ErrCodeInvalidSignature))
}
