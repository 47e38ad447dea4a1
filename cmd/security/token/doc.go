// Package token mints and verifies entry tokens for Gatekeep.
//
// An entry token is the opaque deep-link payload that correlates an
// out-of-band "start" action back to a pending join request. It encodes
// the target community reference and is authenticated so a user cannot
// redirect their approval to another community.
//
// Design goals:
// - Default dev/back-compat mode: SHA-256(payload) signature when no HMAC
//   key is configured.
// - Production-enforced mode: HMAC-SHA256(payload, key) when policy
//   requires it.
// - URL-safe output suitable for deep-link query parameters.
//
// Environment:
// - GATEKEEP_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size
//     (>= 32 bytes) and MUST use HMAC (no SHA fallback).
package token
