package models

import (
	"errors"
)

var (
	ErrAuthentication     = errors.New("not authenticated")
	ErrRateLimited        = errors.New("rate limited")
	ErrNetwork            = errors.New("network error")
	ErrTimeout            = errors.New("timed out")
	ErrIncompleteTransfer = errors.New("incomplete download")
	ErrMalformed          = errors.New("malformed upstream response")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrIO                 = errors.New("io error")
	ErrInvalidURL         = errors.New("invalid url")
	ErrInvalidInput       = errors.New("invalid input")

	// ErrMetadataUnstable is returned when gallery metadata keeps drifting.
	ErrMetadataUnstable = errors.New("gallery metadata did not settle")
)

// Retryable reports whether err belongs to the network/timeout class.
// Everything else surfaces immediately.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrIncompleteTransfer)
}
