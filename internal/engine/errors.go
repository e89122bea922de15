package engine

import "errors"

// Sentinel errors returned by engine operations. All of them are local and
// recoverable: a failed call leaves every account untouched.
var (
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrInvalidParameters  = errors.New("invalid parameters")
)
