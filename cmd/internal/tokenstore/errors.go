package tokenstore

import "errors"

var (
	// ErrPartialPair is returned by Save when exactly one of the tokens is empty.
	ErrPartialPair = errors.New("token pair must carry both access and refresh tokens")

	// ErrConfig is returned for invalid backend configuration.
	ErrConfig = errors.New("invalid token store config")
)
