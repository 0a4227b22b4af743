package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStaleSnapshot       = errors.New("market snapshot too old")
	ErrInvalidTransition   = errors.New("invalid position state transition")
	ErrInvariantViolation  = errors.New("trading invariant violated")
	ErrPairSuspended       = errors.New("trading pair suspended")
	ErrOrderRejected       = errors.New("order rejected")
)
