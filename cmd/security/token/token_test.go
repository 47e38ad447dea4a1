package token

import (
	"errors"
	"strings"
	"testing"
)

func TestSignVerifyEntry_RoundTrip(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	tok, err := SignEntry("-1001234567890")
	if err != nil {
		t.Fatalf("SignEntry: %v", err)
	}
	if strings.ContainsAny(tok, "+/= ") {
		t.Fatalf("token is not URL-safe: %q", tok)
	}
	got, err := VerifyEntry(tok)
	if err != nil {
		t.Fatalf("VerifyEntry: %v", err)
	}
	if got != "-1001234567890" {
		t.Fatalf("community mismatch: got %q", got)
	}
}

func TestSignVerifyEntry_HMACMode(t *testing.T) {
	t.Setenv(HMACEnvKey, strings.Repeat("k", 32))

	tok, err := SignEntryRequireHMAC("c42", 32)
	if err != nil {
		t.Fatalf("SignEntryRequireHMAC: %v", err)
	}
	got, err := VerifyEntry(tok)
	if err != nil {
		t.Fatalf("VerifyEntry: %v", err)
	}
	if got != "c42" {
		t.Fatalf("community mismatch: got %q", got)
	}
}

func TestVerifyEntry_RejectsTamper(t *testing.T) {
	t.Setenv(HMACEnvKey, strings.Repeat("k", 32))

	tok, err := SignEntry("c42")
	if err != nil {
		t.Fatalf("SignEntry: %v", err)
	}
	other, err := SignEntry("c43")
	if err != nil {
		t.Fatalf("SignEntry: %v", err)
	}
	// Splice c43's payload onto c42's signature.
	forged := strings.SplitN(other, ".", 2)[0] + "." + strings.SplitN(tok, ".", 2)[1]
	if _, err := VerifyEntry(forged); !errors.Is(err, ErrBadToken) {
		t.Fatalf("expected ErrBadToken, got %v", err)
	}
	for _, bad := range []string{"", ".", "abc", "abc.", ".def"} {
		if _, err := VerifyEntry(bad); !errors.Is(err, ErrBadToken) {
			t.Fatalf("VerifyEntry(%q): expected ErrBadToken, got %v", bad, err)
		}
	}
}

func TestSignEntryRequireHMAC_Policy(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := SignEntryRequireHMAC("c1", 32); !errors.Is(err, ErrHMACKeyMissing) {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	t.Setenv(HMACEnvKey, "short")
	if _, err := SignEntryRequireHMAC("c1", 32); !errors.Is(err, ErrHMACKeyTooShort) {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	if _, err := SignEntry("   "); !errors.Is(err, ErrEmptyCommunity) {
		t.Fatalf("expected ErrEmptyCommunity, got %v", err)
	}
}
