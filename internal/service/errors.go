package service

import (
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

var (
	ErrInvoiceNotFound           = models.ErrInvoiceNotFound
	ErrPaymentNotFound           = models.ErrPaymentNotFound
	ErrRefundInProgress          = errors.New("refund already requested")
	ErrInvalidNonce              = errors.New("invalid setup nonce")
	ErrInvalidServerURL          = errors.New("invalid server url")
	ErrNotConfigured             = errors.New("payment gateway not configured")
	ErrMissingInvoicePlaceholder = errors.New("return url lacks " + InvoiceIDPlaceholder + " placeholder")
	ErrMissingCheckoutLink       = errors.New("remote invoice has no checkout link")
)

type ScopeErrorKind string

const (
	ScopeMalformed       ScopeErrorKind = "malformed"
	ScopeMultiStore      ScopeErrorKind = "multi_store"
	ScopeIncompleteGrant ScopeErrorKind = "incomplete_grant"
)

type ScopeError struct {
	Kind       ScopeErrorKind
	Permission string
}

func (e *ScopeError) Error() string {
	if e.Permission != "" {
		return fmt.Sprintf("scope %s: %q", e.Kind, e.Permission)
	}
	return fmt.Sprintf("scope %s", e.Kind)
}

type VerificationErrorKind string

const (
	VerifyBadSignature  VerificationErrorKind = "bad_signature"
	VerifyStoreMismatch VerificationErrorKind = "store_mismatch"
	VerifyUnexpected    VerificationErrorKind = "unexpected_event"
)

// VerificationError explains a rejected delivery in logs. It is never sent
// back to the sender.
type VerificationError struct {
	Kind VerificationErrorKind
}

func (e *VerificationError) Error() string {
	return "webhook rejected: " + string(e.Kind)
}

// InvoiceError is the single failure kind of the invoice gateway.
type InvoiceError struct {
	Op    string
	Cause error
}

func (e *InvoiceError) Error() string {
	return fmt.Sprintf("gateway failure during %s: %v", e.Op, e.Cause)
}

func (e *InvoiceError) Unwrap() error { return e.Cause }

type RefundError struct {
	Cause error
}

func (e *RefundError) Error() string {
	return "refund failed: " + e.Cause.Error()
}

func (e *RefundError) Unwrap() error { return e.Cause }

// UnrecordedRefundError means the remote refund exists but the ledger
// write failed. The request must not be repeated.
type UnrecordedRefundError struct {
	RemoteRefundID string
	Cause          error
}

func (e *UnrecordedRefundError) Error() string {
	return fmt.Sprintf("refund %s issued but not recorded: %v", e.RemoteRefundID, e.Cause)
}

func (e *UnrecordedRefundError) Unwrap() error { return e.Cause }

type NotifyError struct {
	Cause error
}

func (e *NotifyError) Error() string {
	return "notification failed: " + e.Cause.Error()
}

func (e *NotifyError) Unwrap() error { return e.Cause }
