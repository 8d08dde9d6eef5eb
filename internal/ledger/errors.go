package ledger

import "errors"

var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrSideMismatch         = errors.New("position side mismatch")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrPositionLimit        = errors.New("open position limit reached")

	// ErrTransactionFailure wraps infrastructure failures (write conflicts,
	// lost connections). The operation was rolled back as a whole.
	ErrTransactionFailure = errors.New("ledger transaction failed")
)

// IsRejection reports whether err is a precondition failure that left the
// ledger untouched and is not worth retrying.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientHoldings) ||
		errors.Is(err, ErrSideMismatch) ||
		errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrPositionLimit)
}
