package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStatus describes the stored access token. Claims are read without
// signature verification; the API remains the authority.
type TokenStatus struct {
	Subject    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	HasRefresh bool
}

// Expired reports whether the access token has expired at now.
func (s TokenStatus) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Remaining is the time left before expiry, or zero.
func (s TokenStatus) Remaining(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// TokenStatus inspects the stored access token.
func (c *Controller) TokenStatus(ctx context.Context) (TokenStatus, error) {
	pair, err := c.store.Load(ctx)
	if err != nil {
		return TokenStatus{}, err
	}
	if pair.Access == "" {
		return TokenStatus{}, ErrNotAuthenticated
	}
	st, err := inspectToken(pair.Access)
	if err != nil {
		return TokenStatus{}, err
	}
	st.HasRefresh = pair.Refresh != ""
	return st, nil
}

func inspectToken(raw string) (TokenStatus, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenStatus{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var st TokenStatus
	st.Subject, _ = claims.GetSubject()
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		st.ExpiresAt = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		st.IssuedAt = iat.Time
	}
	return st, nil
}
