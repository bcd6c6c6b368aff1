package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindAuthorization       Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindPaymentRequired     Kind = "payment_required"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindExtraction          Kind = "extraction_failed"
	KindAggregationConflict Kind = "aggregation_conflict"
	KindDownstream          Kind = "downstream_failure"
	KindNotImplemented      Kind = "not_implemented"
)

// Error carries a kind, a coarse message and optional validation details
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string, details ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func PaymentRequired(message string) *Error {
	return &Error{Kind: KindPaymentRequired, Message: message}
}

func QuotaExceeded(message string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: message}
}

func Extraction(message string, cause error) *Error {
	return &Error{Kind: KindExtraction, Message: message, Cause: cause}
}

func AggregationConflict(message string, cause error) *Error {
	return &Error{Kind: KindAggregationConflict, Message: message, Cause: cause}
}

func Downstream(message string, cause error) *Error {
	return &Error{Kind: KindDownstream, Message: message, Cause: cause}
}

func NotImplemented(message string) *Error {
	return &Error{Kind: KindNotImplemented, Message: message}
}

// KindOf returns the kind of the first *Error in the chain, or KindDownstream for anything else
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDownstream
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
