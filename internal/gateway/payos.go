package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"listing-service/config"
	"listing-service/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	payosSuccessCode = "00"
	// orderCode must fit in a JavaScript safe integer
	payosOrderCodeMask = 1<<53 - 1
	// description is truncated by the gateway beyond this length
	payosMaxDescription = 25
)

// PayOSClient is the webhook gateway: checkout links are created over its
// REST API and results arrive as signed JSON webhooks.
type PayOSClient struct {
	cfg    config.PayOSConfig
	http   *resty.Client
	signer *Signer
}

// NewPayOSClient creates a PayOS client with a bounded request timeout
func NewPayOSClient(cfg config.PayOSConfig, timeout time.Duration) *PayOSClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-client-id", cfg.ClientID).
		SetHeader("x-api-key", cfg.APIKey)

	return &PayOSClient{
		cfg:    cfg,
		http:   httpClient,
		signer: NewPayOSSigner(cfg.ChecksumKey),
	}
}

func (c *PayOSClient) Kind() models.Gateway {
	return models.GatewayPayOS
}

// Reference maps the payment UUID to a numeric orderCode with FNV-1a
func (c *PayOSClient) Reference(paymentID uuid.UUID) string {
	h := fnv.New64a()
	h.Write(paymentID[:])
	return strconv.FormatUint(h.Sum64()&payosOrderCodeMask, 10)
}

type payosEnvelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type payosCreateData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	PaymentLinkID string `json:"paymentLinkId"`
}

type payosStatusData struct {
	OrderCode    int64  `json:"orderCode"`
	Amount       int64  `json:"amount"`
	AmountPaid   int64  `json:"amountPaid"`
	Status       string `json:"status"`
	Transactions []struct {
		Reference string `json:"reference"`
	} `json:"transactions"`
	CancellationReason *string `json:"cancellationReason"`
}

// Initiate creates a checkout link
func (c *PayOSClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if c.cfg.ChecksumKey == "" || c.cfg.ClientID == "" {
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable, "payos is not configured", nil)
	}

	orderCode, err := strconv.ParseInt(req.Payment.GatewayRef, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid payos order code %q: %w", req.Payment.GatewayRef, err)
	}

	description := req.Description
	if len(description) > payosMaxDescription {
		description = description[:payosMaxDescription]
	}

	signed := map[string]string{
		"amount":      strconv.FormatInt(req.Payment.Amount, 10),
		"cancelUrl":   c.cfg.CancelURL,
		"description": description,
		"orderCode":   req.Payment.GatewayRef,
		"returnUrl":   c.cfg.ReturnURL,
	}

	body := map[string]interface{}{
		"orderCode":   orderCode,
		"amount":      req.Payment.Amount,
		"description": description,
		"cancelUrl":   c.cfg.CancelURL,
		"returnUrl":   c.cfg.ReturnURL,
		"signature":   c.signer.Sign(signed),
	}

	var envelope payosEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&envelope).
		Post("/v2/payment-requests")
	if err != nil {
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable, "payos create payment link failed", err)
	}
	if resp.IsError() || envelope.Code != payosSuccessCode {
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable,
			fmt.Sprintf("payos rejected payment link: status=%d code=%s desc=%s", resp.StatusCode(), envelope.Code, envelope.Desc), nil)
	}

	var data payosCreateData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode payos payment link: %w", err)
	}

	return &InitiateResult{PaymentURL: data.CheckoutURL}, nil
}

// QueryStatus polls the payment link for a payment
func (c *PayOSClient) QueryStatus(ctx context.Context, payment *models.PaymentRecord) (*Status, error) {
	var envelope payosEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetPathParam("orderCode", payment.GatewayRef).
		Get("/v2/payment-requests/{orderCode}")
	if err != nil {
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable, "payos status query failed", err)
	}
	if resp.IsError() || envelope.Code != payosSuccessCode {
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable,
			fmt.Sprintf("payos status query rejected: status=%d code=%s", resp.StatusCode(), envelope.Code), nil)
	}

	var data payosStatusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode payos status: %w", err)
	}

	status := &Status{Amount: data.Amount}
	if len(data.Transactions) > 0 {
		status.TxnID = data.Transactions[0].Reference
	}

	switch data.Status {
	case "PAID":
		status.Terminal = true
		status.Success = true
	case "CANCELLED", "EXPIRED":
		status.Terminal = true
		status.Reason = "payos " + data.Status
		if data.CancellationReason != nil && *data.CancellationReason != "" {
			status.Reason = *data.CancellationReason
		}
	}
	return status, nil
}

// ParseCallback verifies a webhook body
func (c *PayOSClient) ParseCallback(raw RawCallback) (*Callback, error) {
	var envelope payosEnvelope
	if err := json.Unmarshal(raw.Body, &envelope); err != nil {
		return nil, models.NewDomainError(models.ErrCodeInvalidSignature, "malformed webhook body", err)
	}

	data, err := flattenJSON(envelope.Data)
	if err != nil {
		return nil, models.NewDomainError(models.ErrCodeInvalidSignature, "malformed webhook data", err)
	}

	if !c.signer.Verify(data, envelope.Signature) {
		return nil, models.ErrInvalidSignature
	}

	amount, err := strconv.ParseInt(data["amount"], 10, 64)
	if err != nil {
		return nil, models.NewDomainError(models.ErrCodeAmountMismatch, "unparseable webhook amount", err)
	}

	return &Callback{
		Gateway:      models.GatewayPayOS,
		Reference:    data["orderCode"],
		Amount:       amount,
		Success:      envelope.Code == payosSuccessCode && data["code"] == payosSuccessCode,
		TxnID:        data["reference"],
		ResponseCode: data["code"],
		Message:      data["desc"],
	}, nil
}

// flattenJSON turns a JSON object into the string map the signature is
// computed over. null becomes the empty string and numbers keep their
// literal form.
func flattenJSON(raw json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			nested, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			out[k] = string(nested)
		}
	}
	return out, nil
}
