package storage

import "errors"

// Expected, recoverable failure conditions. Callers discriminate with
// errors.Is and render a specific message; none of these should crash the
// process. Anything else coming out of the store is a connectivity/SQL
// failure and is treated as fatal for the operation that hit it.
var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrDuplicateBet      = errors.New("duplicate bet")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSelfReferral      = errors.New("self referral")
)
