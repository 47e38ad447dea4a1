package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "GATEKEEP_TOKEN_HMAC_KEY"
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	return raw != ""
}

// signHex signs payload with the env key when present, falling back to a
// plain SHA-256 digest for dev/back-compat.
func signHex(payload string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(payload)
	}
	return HashHMACSHA256Hex(payload, []byte(key))
}

// SignEntry mints an entry token binding a deep-link start back to the
// community the join request targets. The result is URL-safe.
func SignEntry(communityID string) (string, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return "", ErrEmptyCommunity
	}
	payload := base64.RawURLEncoding.EncodeToString([]byte(communityID))
	return payload + "." + signHex(payload), nil
}

// SignEntryRequireHMAC mints an entry token in enforced-HMAC mode.
// It fails if the key is missing or too short.
func SignEntryRequireHMAC(communityID string, minBytes int) (string, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return "", ErrEmptyCommunity
	}
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString([]byte(communityID))
	return payload + "." + HashHMACSHA256Hex(payload, key), nil
}

// VerifyEntry validates an entry token and returns the community it was
// minted for. Signature comparison is constant-time.
func VerifyEntry(tok string) (string, error) {
	payload, sig, ok := strings.Cut(strings.TrimSpace(tok), ".")
	if !ok || payload == "" || sig == "" {
		return "", ErrBadToken
	}
	if !hmac.Equal([]byte(signHex(payload)), []byte(sig)) {
		return "", ErrBadToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrBadToken
	}
	return string(raw), nil
}
