package booking

import "errors"

var (
	ErrSessionNotFound = errors.New("booking session not found")
	ErrNotFound        = errors.New("booking not found")
	ErrSessionClosed   = errors.New("booking session is no longer active")
	ErrStockConflict   = errors.New("insufficient stock for one or more materials")
)

// StockConflictError carries the per-line detail behind ErrStockConflict.
type StockConflictError struct {
	Conflicts []LineConflict
}

func (e *StockConflictError) Error() string { return ErrStockConflict.Error() }

func (e *StockConflictError) Unwrap() error { return ErrStockConflict }

// ValidationFailedError carries the collected assembler reasons when a draft
// cannot be built.
type ValidationFailedError struct {
	Reasons []Reason
}

func (e *ValidationFailedError) Error() string { return "booking is not ready to submit" }
