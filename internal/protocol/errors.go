package protocol

import "errors"

// Error taxonomy for the settlement core. Every operation that fails
// with one of these aborts atomically: checks run before any mutation,
// and multi-leg operations revert partial state before returning.
var (
	// ErrUnauthorized means the caller is not allowed to perform a
	// privileged operation (owner-only, relayer-only, router-only,
	// migrator-only).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance means a redeem or migration exceeds the
	// holder's recorded share balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientGas means the supplied fee does not cover the
	// quoted cross-chain delivery cost.
	ErrInsufficientGas = errors.New("insufficient gas")

	// ErrInvalidBasket means a malformed or zero-sum weight vector.
	ErrInvalidBasket = errors.New("invalid basket")

	// ErrAlreadyInitialized means a re-init attempt on a fund.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrDivisionByZero means a zero price or zero total supply fed
	// into a proportional computation.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrMalformedMessage means a payload failed to decode or carried
	// the wrong number of attached token transfers.
	ErrMalformedMessage = errors.New("malformed message")
)
