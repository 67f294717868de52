package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrMissingOrderID   = errors.New("missing_order_id")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrLockTimeout      = errors.New("lock_timeout")

	ErrDeliveryLogDisabled = errors.New("delivery_log_disabled")
)

// Kind separates client-caused failures from server-side ones so the HTTP
// layer can choose a status code without inspecting messages.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindUnauthorized
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream_error"
	default:
		return "internal_error"
	}
}

// Error is the error type returned by the ingestion pipeline.
type Error struct {
	Kind    Kind
	OrderID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.OrderID != "" {
		return fmt.Sprintf("order %s: %s", e.OrderID, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidationError(message string, err error) error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

func NewUpstreamError(orderID, message string, err error) error {
	return &Error{Kind: KindUpstream, OrderID: orderID, Message: message, Err: err}
}

func NewUnexpectedError(orderID, message string, err error) error {
	return &Error{Kind: KindUnexpected, OrderID: orderID, Message: message, Err: err}
}

// KindOf reports the Kind of err, defaulting to KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	if errors.Is(err, ErrInvalidSignature) {
		return KindUnauthorized
	}
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrMissingOrderID) {
		return KindValidation
	}
	return KindUnexpected
}
