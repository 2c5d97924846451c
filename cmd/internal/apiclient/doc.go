// Package apiclient is the authenticated HTTP client for the team dashboard API.
//
// Every request reads the current access token from the token store at send
// time. A 401 on a protected request triggers one refresh per client: the first
// 401 starts the refresh, later ones park on it, and all of them are re-issued
// once with the new token. A failed refresh clears the store and notifies
// OnLogout subscribers; every parked request fails with the same error.
package apiclient
