// Package password holds the client-side password policy.
//
// The API rejects passwords outside 8..128 characters; checking the same bounds
// before a request lets forms report the problem inline without a round trip.
// Limits can be tightened (never loosened past the API bounds) via env.
package password
