package notify

import (
	"net/url"
	"strings"

	v1 "teamdash/contracts/notifications/v1"
)

// FallbackOrigin is used when the API base URL cannot be parsed.
const FallbackOrigin = "http://localhost:9000"

// URL builds the notification socket URL for the API at base. Only the
// origin of base is used; http maps to ws and https to wss.
func URL(base, token string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		u, _ = url.Parse(FallbackOrigin)
	}

	scheme := "ws"
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     u.Host,
		Path:     v1.Path,
		RawQuery: url.Values{v1.TokenParam: {token}}.Encode(),
	}
	return out.String()
}
