package app

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MinVaultPassphrase is the shortest accepted vault passphrase, in runes.
const MinVaultPassphrase = 12

// ValidateSecurityConfig enforces the token-at-rest policy at startup.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.VaultPassphrase != "" && utf8.RuneCountInString(cfg.VaultPassphrase) < MinVaultPassphrase {
		return fmt.Errorf("security policy: TEAMDASH_VAULT_PASSPHRASE is too short (min %d characters)", MinVaultPassphrase)
	}
	if !cfg.RequireVault {
		return nil
	}
	if cfg.TokenStore != StoreFile {
		return fmt.Errorf("security policy: TEAMDASH_REQUIRE_VAULT=true only applies to the file store, got %q", cfg.TokenStore)
	}
	if cfg.VaultPassphrase == "" {
		return errors.New("security policy: TEAMDASH_REQUIRE_VAULT=true but TEAMDASH_VAULT_PASSPHRASE is missing")
	}
	return nil
}
