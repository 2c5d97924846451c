// Package notify keeps the live notification feed of the signed-in user.
//
// A Stream holds at most one WebSocket connection to the API's notification
// endpoint. The connection is opened when the stream is activated with a
// stored access token and torn down when it is deactivated, closed, or when
// the socket fails. There is no automatic reconnect: callers re-activate the
// stream (usually on the next sign-in).
//
// Received messages are kept in a small newest-first feed.
package notify
