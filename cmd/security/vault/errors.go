package vault

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptyPassphrase = errors.New("vault: empty passphrase")
	ErrCorrupt         = errors.New("vault: corrupt sealed data")
	ErrDecrypt         = errors.New("vault: decryption failed")
	ErrParams          = errors.New("vault: invalid argon2id params")
)
