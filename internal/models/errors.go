package models

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, machine-readable error code
type ErrorCode string

const (
	ErrCodeOptionRequired         ErrorCode = "OPTION_REQUIRED"
	ErrCodeOptionMismatch         ErrorCode = "OPTION_MISMATCH"
	ErrCodeListingNotDraft        ErrorCode = "LISTING_NOT_DRAFT"
	ErrCodeInvalidTransition      ErrorCode = "INVALID_STATE_FOR_TRANSITION"
	ErrCodeAddonTooLong           ErrorCode = "ADDON_DURATION_TOO_LONG"
	ErrCodeNoOfferSelected        ErrorCode = "NO_OFFER_SELECTED"
	ErrCodeNotStandardPackage     ErrorCode = "NOT_STANDARD_PACKAGE"
	ErrCodePaymentInProgress      ErrorCode = "PAYMENT_IN_PROGRESS"
	ErrCodePaymentNotRetryable    ErrorCode = "PAYMENT_NOT_RETRYABLE"
	ErrCodeNoCompletedPayment     ErrorCode = "NO_COMPLETED_PAYMENT"
	ErrCodeUnsupportedGateway     ErrorCode = "UNSUPPORTED_GATEWAY"
	ErrCodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidSignature       ErrorCode = "INVALID_SIGNATURE"
	ErrCodeAmountMismatch         ErrorCode = "AMOUNT_MISMATCH"
	ErrCodeUnknownMerchantCode    ErrorCode = "UNKNOWN_MERCHANT_CODE"
	ErrCodeListingNotFound        ErrorCode = "LISTING_NOT_FOUND"
	ErrCodePaymentNotFound        ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePackageNotFound        ErrorCode = "PACKAGE_NOT_FOUND"
	ErrCodeGatewayUnavailable     ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// ErrorKind groups codes by how callers should react
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindTrust       ErrorKind = "trust"
	KindNotFound    ErrorKind = "not_found"
	KindIntegration ErrorKind = "integration"
	KindInternal    ErrorKind = "internal"
)

var codeKinds = map[ErrorCode]ErrorKind{
	ErrCodeOptionRequired:         KindValidation,
	ErrCodeOptionMismatch:         KindValidation,
	ErrCodeListingNotDraft:        KindValidation,
	ErrCodeInvalidTransition:      KindValidation,
	ErrCodeAddonTooLong:           KindValidation,
	ErrCodeNoOfferSelected:        KindValidation,
	ErrCodeNotStandardPackage:     KindValidation,
	ErrCodePaymentInProgress:      KindValidation,
	ErrCodePaymentNotRetryable:    KindValidation,
	ErrCodeNoCompletedPayment:     KindValidation,
	ErrCodeUnsupportedGateway:     KindValidation,
	ErrCodeInvalidRequest:         KindValidation,
	ErrCodeInvalidSignature:       KindTrust,
	ErrCodeAmountMismatch:         KindTrust,
	ErrCodeUnknownMerchantCode:    KindTrust,
	ErrCodeListingNotFound:        KindNotFound,
	ErrCodePaymentNotFound:        KindNotFound,
	ErrCodePackageNotFound:        KindNotFound,
	ErrCodeGatewayUnavailable:     KindIntegration,
	ErrCodeConcurrentModification: KindInternal,
	ErrCodeInternal:               KindInternal,
}

// Kind returns the error kind for a code, internal when unknown
func (c ErrorCode) Kind() ErrorKind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindInternal
}

// DomainError carries an error code alongside a human message
type DomainError struct {
	Err     error
	Code    ErrorCode
	Message string
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError with the same code, so the sentinels below
// work with errors.Is regardless of message or wrapped cause.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the error code, or INTERNAL_ERROR for non-domain errors
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// IsDomainError reports whether err carries the given code
func IsDomainError(err error, code ErrorCode) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

var (
	ErrOptionRequired         = NewDomainError(ErrCodeOptionRequired, "package requires a duration option", nil)
	ErrOptionMismatch         = NewDomainError(ErrCodeOptionMismatch, "option does not belong to package", nil)
	ErrListingNotDraft        = NewDomainError(ErrCodeListingNotDraft, "listing is not in draft", nil)
	ErrInvalidTransition      = NewDomainError(ErrCodeInvalidTransition, "transition not allowed from current status", nil)
	ErrAddonTooLong           = NewDomainError(ErrCodeAddonTooLong, "addon duration must be shorter than standard duration", nil)
	ErrNoOfferSelected        = NewDomainError(ErrCodeNoOfferSelected, "at least one offer is required", nil)
	ErrNotStandardPackage     = NewDomainError(ErrCodeNotStandardPackage, "renewal base package must be the standard package", nil)
	ErrPaymentInProgress      = NewDomainError(ErrCodePaymentInProgress, "listing already has a pending payment", nil)
	ErrPaymentNotRetryable    = NewDomainError(ErrCodePaymentNotRetryable, "only the latest failed payment can be retried", nil)
	ErrNoCompletedPayment     = NewDomainError(ErrCodeNoCompletedPayment, "listing has no completed payment", nil)
	ErrInvalidSignature       = NewDomainError(ErrCodeInvalidSignature, "signature verification failed", nil)
	ErrAmountMismatch         = NewDomainError(ErrCodeAmountMismatch, "callback amount does not match payment", nil)
	ErrUnknownMerchant        = NewDomainError(ErrCodeUnknownMerchantCode, "unknown merchant code", nil)
	ErrListingNotFound        = NewDomainError(ErrCodeListingNotFound, "listing not found", nil)
	ErrPaymentNotFound        = NewDomainError(ErrCodePaymentNotFound, "payment not found", nil)
	ErrPackageNotFound        = NewDomainError(ErrCodePackageNotFound, "package not found", nil)
	ErrConcurrentModification = NewDomainError(ErrCodeConcurrentModification, "row changed concurrently", nil)
)
