package vault

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	magic     = "tdv1"
	saltLen   = 16
	nonceLen  = 24
	keyLen    = 32
	headerLen = len(magic) + saltLen + nonceLen

	// Upper bounds applied to env overrides.
	maxMemoryKiB  = 1 << 20 // 1 GiB
	maxIterations = 16
)

// Params controls Argon2id key derivation cost.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams is tuned for a CLI that derives a key on every token read.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   32 * 1024,
		Iterations:  2,
		Parallelism: 2,
	}
}

// ParamsFromEnv applies TEAMDASH_VAULT_MEMORY_KIB, TEAMDASH_VAULT_ITERATIONS and
// TEAMDASH_VAULT_PARALLELISM on top of DefaultParams.
func ParamsFromEnv() (Params, error) {
	p := DefaultParams()

	if v, ok := os.LookupEnv("TEAMDASH_VAULT_MEMORY_KIB"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n < 8*1024 || n > maxMemoryKiB {
			return Params{}, ErrParams
		}
		p.MemoryKiB = uint32(n)
	}
	if v, ok := os.LookupEnv("TEAMDASH_VAULT_ITERATIONS"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n < 1 || n > maxIterations {
			return Params{}, ErrParams
		}
		p.Iterations = uint32(n)
	}
	if v, ok := os.LookupEnv("TEAMDASH_VAULT_PARALLELISM"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || n < 1 {
			return Params{}, ErrParams
		}
		p.Parallelism = uint8(n)
	}
	return p, nil
}

// Vault seals and opens byte slices with a passphrase-derived key.
// The most recently derived key is cached per salt.
type Vault struct {
	passphrase []byte
	params     Params

	mu       sync.Mutex
	lastSalt []byte
	lastKey  [keyLen]byte
}

// New returns a Vault for passphrase.
func New(passphrase string, p Params) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return nil, ErrParams
	}
	return &Vault{passphrase: []byte(passphrase), params: p}, nil
}

// Seal encrypts plain under a fresh salt and nonce.
func (v *Vault) Seal(plain []byte) ([]byte, error) {
	var salt [saltLen]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return nil, fmt.Errorf("vault: salt: %w", err)
	}
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}

	key := v.key(salt[:])

	out := make([]byte, 0, headerLen+len(plain)+secretbox.Overhead)
	out = append(out, magic...)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, &key), nil
}

// Open decrypts data produced by Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < headerLen+secretbox.Overhead || !bytes.HasPrefix(sealed, []byte(magic)) {
		return nil, ErrCorrupt
	}
	salt := sealed[len(magic) : len(magic)+saltLen]

	var nonce [nonceLen]byte
	copy(nonce[:], sealed[len(magic)+saltLen:headerLen])

	key := v.key(salt)
	plain, ok := secretbox.Open(nil, sealed[headerLen:], &nonce, &key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// IsSealed reports whether data carries the vault header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(magic))
}

func (v *Vault) key(salt []byte) [keyLen]byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.lastSalt != nil && bytes.Equal(v.lastSalt, salt) {
		return v.lastKey
	}

	derived := argon2.IDKey(v.passphrase, salt, v.params.Iterations, v.params.MemoryKiB, v.params.Parallelism, keyLen)

	var key [keyLen]byte
	copy(key[:], derived)
	v.lastSalt = append(v.lastSalt[:0], salt...)
	v.lastKey = key
	return key
}
