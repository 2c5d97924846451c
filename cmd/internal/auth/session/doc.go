// Package session holds the signed-in user for a teamdash process.
//
// A Controller persists token pairs through the API client's token store,
// keeps the current user in memory, and tells subscribers whenever the
// authentication state changes. It drops the user when the API client
// reports a failed token refresh.
//
// The controller never signs or verifies tokens. TokenStatus only reads the
// unverified claims of the stored access token for display.
package session
