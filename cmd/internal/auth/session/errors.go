package session

import "errors"

var (
	// ErrNotAuthenticated is returned by guards when no user is signed in.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrMalformedToken is returned when the stored access token cannot be parsed.
	ErrMalformedToken = errors.New("malformed access token")
)
