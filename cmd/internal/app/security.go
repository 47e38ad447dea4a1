package app

import (
	"errors"

	"gatekeep/cmd/security/token"
)

// ValidateSecurityConfig enforces Gatekeep's security policy at startup.
//
// Fail-fast is intentional: silently minting unauthenticated entry
// tokens in production is unacceptable. Enforcement validates the same
// module that performs the signing (security/token).
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes recommended for HMAC-SHA256 secret.
	// Measured in bytes (not runes) because the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: GATEKEEP_REQUIRE_TOKEN_HMAC=true but GATEKEEP_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: GATEKEEP_REQUIRE_TOKEN_HMAC=true but GATEKEEP_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// Extra hard assertion: signing must be HMAC-enabled in this runtime.
	// (Guards against accidental future changes that reintroduce the SHA
	// fallback under policy.)
	if !token.HMACEnabled() {
		return errors.New("security policy: GATEKEEP_REQUIRE_TOKEN_HMAC=true but token signer is not in HMAC mode")
	}

	return nil
}
