package api

import (
	"errors"
	"net/http"

	"listing-service/internal/models"

	"github.com/gin-gonic/gin"
)

// httpStatus maps a domain error onto an HTTP status
func httpStatus(err error) int {
	code := models.CodeOf(err)
	switch code {
	case models.ErrCodePaymentInProgress, models.ErrCodeConcurrentModification:
		return http.StatusConflict
	}

	switch code.Kind() {
	case models.KindValidation, models.KindTrust:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindIntegration:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorMessage hides internal details from callers
func errorMessage(err error) string {
	var de *models.DomainError
	if errors.As(err, &de) && de.Code.Kind() != models.KindInternal {
		return de.Message
	}
	return "internal error"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zapRequest(c, err)...)
	}
	c.JSON(status, gin.H{
		"error":   models.CodeOf(err),
		"message": errorMessage(err),
	})
}

// VNPay IPN response codes
const (
	vnpayConfirmed      = "00"
	vnpayOrderNotFound  = "01"
	vnpayInvalidAmount  = "04"
	vnpayInvalidSig     = "97"
	vnpayUnknownFailure = "99"
)

// vnpayAck translates a settlement result into the IPN acknowledgement.
// A duplicate is acknowledged like a first delivery so VNPay stops retrying.
func vnpayAck(err error) (string, string) {
	if err == nil {
		return vnpayConfirmed, "Confirm Success"
	}
	switch models.CodeOf(err) {
	case models.ErrCodeInvalidSignature, models.ErrCodeUnknownMerchantCode:
		return vnpayInvalidSig, "Invalid Checksum"
	case models.ErrCodePaymentNotFound:
		return vnpayOrderNotFound, "Order not found"
	case models.ErrCodeAmountMismatch:
		return vnpayInvalidAmount, "Invalid amount"
	}
	return vnpayUnknownFailure, "Unknown error"
}
