package usecase

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrMalformedEvent is a correctly signed event whose object does not decode.
	ErrMalformedEvent   = errors.New("webhook event object malformed")
	ErrDuplicate        = errors.New("duplicate idempotency key")
	ErrEmptyCode        = errors.New("no code provided")
	ErrUnknownPromotion = errors.New("unknown or inactive promotion code")
	ErrCartTooLarge     = errors.New("cart too large for payment session metadata")
)

// ValidationError is bad caller input; nothing was written.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return "validation: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error { return &ValidationError{Err: err} }

// UpstreamError is a failed ledger, provider or email call.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(op string, err error) error { return &UpstreamError{Op: op, Err: err} }
