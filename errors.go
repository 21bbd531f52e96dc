package bthost

import "github.com/pkg/errors"

// Errors reported synchronously by the public API. Callers compare with
// errors.Cause.
var (
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidArg   = errors.New("invalid argument")
	ErrInvalidSize  = errors.New("invalid size")
	ErrNoMem        = errors.New("no memory")
	ErrFail         = errors.New("failure")
)
