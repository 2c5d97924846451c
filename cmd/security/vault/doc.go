// Package vault seals small secrets at rest with a passphrase.
//
// Keys are derived with Argon2id (random salt per seal) and data is sealed with
// NaCl secretbox (XSalsa20-Poly1305). The sealed format is:
//
//	"tdv1" | salt (16 bytes) | nonce (24 bytes) | box
//
// Sealed blobs are treated as untrusted input during Open.
package vault
