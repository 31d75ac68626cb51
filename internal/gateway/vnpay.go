package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"listing-service/config"
	"listing-service/internal/models"
	"listing-service/internal/util"

	"github.com/google/uuid"
)

const (
	vnpSecureHash     = "vnp_SecureHash"
	vnpSecureHashType = "vnp_SecureHashType"

	vnpSuccessCode = "00"
	vnpDateLayout  = "20060102150405"
	vnpPaymentTTL  = 15 * time.Minute
)

var vnpLocation = time.FixedZone("ICT", 7*60*60)

// VNPayClient is the redirect gateway: the buyer is sent to a signed URL and
// the result comes back as signed query parameters on both the browser
// return and the IPN.
type VNPayClient struct {
	cfg    config.VNPayConfig
	signer *Signer
	clock  util.Clock
}

// NewVNPayClient creates a VNPay client
func NewVNPayClient(cfg config.VNPayConfig, clock util.Clock) *VNPayClient {
	return &VNPayClient{
		cfg:    cfg,
		signer: NewVNPaySigner(cfg.HashSecret),
		clock:  clock,
	}
}

func (c *VNPayClient) Kind() models.Gateway {
	return models.GatewayVNPay
}

// Reference uses the payment id without dashes as vnp_TxnRef
func (c *VNPayClient) Reference(paymentID uuid.UUID) string {
	return strings.ReplaceAll(paymentID.String(), "-", "")
}

// Initiate builds the signed checkout URL. No network call is made.
func (c *VNPayClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if c.cfg.HashSecret == "" || c.cfg.TmnCode == "" {
		return nil, models.NewDomainError(models.ErrCodeGatewayUnavailable, "vnpay is not configured", nil)
	}

	now := c.clock.Now().In(vnpLocation)
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	fields := map[string]string{
		"vnp_Version":    c.cfg.Version,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Payment.Amount*100, 10),
		"vnp_CurrCode":   req.Payment.Currency,
		"vnp_TxnRef":     req.Payment.GatewayRef,
		"vnp_OrderInfo":  req.Description,
		"vnp_OrderType":  "other",
		"vnp_Locale":     c.cfg.Locale,
		"vnp_ReturnUrl":  c.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": now.Format(vnpDateLayout),
		"vnp_ExpireDate": now.Add(vnpPaymentTTL).Format(vnpDateLayout),
	}

	query := c.signer.Canonicalize(fields)
	signature := c.signer.Sign(fields)

	return &InitiateResult{
		PaymentURL: fmt.Sprintf("%s?%s&%s=%s", c.cfg.PayURL, query, vnpSecureHash, signature),
	}, nil
}

// ParseCallback verifies the signed return/IPN parameters
func (c *VNPayClient) ParseCallback(raw RawCallback) (*Callback, error) {
	fields := make(map[string]string, len(raw.Query))
	for k := range raw.Query {
		if strings.HasPrefix(k, "vnp_") {
			fields[k] = raw.Query.Get(k)
		}
	}

	if !c.signer.Verify(fields, fields[vnpSecureHash]) {
		return nil, models.ErrInvalidSignature
	}

	if fields["vnp_TmnCode"] != c.cfg.TmnCode {
		return nil, models.NewDomainError(models.ErrCodeUnknownMerchantCode,
			fmt.Sprintf("unknown merchant code: %s", fields["vnp_TmnCode"]), nil)
	}

	amount, err := strconv.ParseInt(fields["vnp_Amount"], 10, 64)
	if err != nil {
		return nil, models.NewDomainError(models.ErrCodeAmountMismatch, "unparseable vnp_Amount", err)
	}
	// vnp_Amount is in hundredths of a dong; VND has no minor unit
	if amount < 0 || amount%100 != 0 {
		return nil, models.NewDomainError(models.ErrCodeAmountMismatch,
			fmt.Sprintf("vnp_Amount %d is not a whole amount", amount), nil)
	}

	return &Callback{
		Gateway:      models.GatewayVNPay,
		Reference:    fields["vnp_TxnRef"],
		Amount:       amount / 100,
		Success:      fields["vnp_ResponseCode"] == vnpSuccessCode && fields["vnp_TransactionStatus"] == vnpSuccessCode,
		TxnID:        fields["vnp_TransactionNo"],
		ResponseCode: fields["vnp_ResponseCode"],
		Message:      fields["vnp_OrderInfo"],
	}, nil
}
