package tokenstore

import "context"

// Persisted key names. They match what the browser clients kept in localStorage,
// so a stored pair can be exported/imported verbatim.
const (
	KeyAccess  = "accessToken"
	KeyRefresh = "refreshToken"
)

// Pair is the current access/refresh token pair.
type Pair struct {
	Access  string `json:"accessToken"`
	Refresh string `json:"refreshToken"`
}

// Empty reports whether neither token is set.
func (p Pair) Empty() bool { return p.Access == "" && p.Refresh == "" }

func (p Pair) validate() error {
	if (p.Access == "") != (p.Refresh == "") {
		return ErrPartialPair
	}
	return nil
}

// Store is the token persistence contract.
//
// Load returns the zero Pair (and no error) when nothing is stored.
// Save replaces both tokens at once; saving the zero Pair is equivalent to Clear.
// Clear is idempotent.
type Store interface {
	Load(ctx context.Context) (Pair, error)
	Save(ctx context.Context, p Pair) error
	Clear(ctx context.Context) error
}
