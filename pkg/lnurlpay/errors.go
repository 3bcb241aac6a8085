package lnurlpay

import (
	"errors"
	"fmt"
)

// Category classifies negotiation failures. Every category is recovered
// locally into the same LNURL error payload; the distinction only feeds
// logs and metrics.
type Category int

const (
	// CategoryUserNotFound means wallet resolution failed, for any reason.
	CategoryUserNotFound Category = iota
	// CategoryMalformedAmount means the amount (or nostr) parameter was not
	// a scalar whole-satoshi millisatoshi value.
	CategoryMalformedAmount
	// CategoryIssuanceRejected means the issuance collaborator reported a
	// validation error list or returned no invoice.
	CategoryIssuanceRejected
	// CategoryUnexpected covers everything else that fails during phase 2.
	CategoryUnexpected
)

func (c Category) String() string {
	switch c {
	case CategoryUserNotFound:
		return "user_not_found"
	case CategoryMalformedAmount:
		return "malformed_amount"
	case CategoryIssuanceRejected:
		return "issuance_rejected"
	default:
		return "unexpected"
	}
}

// ProtocolError is a negotiation failure destined for the LNURL error
// payload. Reason is the client-facing text; Err, when set, carries the
// cause for logs.
type ProtocolError struct {
	Category Category
	Reason   string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// UserNotFoundError reports a failed wallet resolution. The reason text is
// part of the protocol surface and must not change shape.
func UserNotFoundError(username string, err error) error {
	return &ProtocolError{
		Category: CategoryUserNotFound,
		Reason:   fmt.Sprintf("Couldn't find user '%s'.", username),
		Err:      err,
	}
}

// MalformedAmountError reports an amount that is not a whole number of
// satoshis, or not parseable as one.
func MalformedAmountError(err error) error {
	return &ProtocolError{
		Category: CategoryMalformedAmount,
		Reason:   "Millisatoshi amount is not supported, please send a value in full sats.",
		Err:      err,
	}
}

// InvalidRequestError reports a structurally malformed request, such as a
// repeated query parameter.
func InvalidRequestError(err error) error {
	return &ProtocolError{
		Category: CategoryMalformedAmount,
		Reason:   "Invalid request",
		Err:      err,
	}
}

// IssuanceRejectedError surfaces the first upstream error message verbatim.
func IssuanceRejectedError(firstMessage string, err error) error {
	if firstMessage == "" {
		firstMessage = "unknown error"
	}
	return &ProtocolError{
		Category: CategoryIssuanceRejected,
		Reason:   "Failed to get invoice: " + firstMessage,
		Err:      err,
	}
}

// UnexpectedError wraps any other phase-2 failure.
func UnexpectedError(err error) error {
	reason := "unexpected error"
	if err != nil && err.Error() != "" {
		reason = err.Error()
	}
	return &ProtocolError{
		Category: CategoryUnexpected,
		Reason:   reason,
		Err:      err,
	}
}

// Reason maps any negotiation error to the text of the LNURL error payload.
func Reason(err error) string {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Reason
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "unexpected error"
}

// CategoryOf returns the category of a negotiation error, defaulting to
// CategoryUnexpected for plain errors.
func CategoryOf(err error) Category {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Category
	}
	return CategoryUnexpected
}
