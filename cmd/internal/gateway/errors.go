package gateway

import "errors"

// Public, stable errors for callers.
var (
	// ErrGatewayFailure means an approval or invite call did not take
	// effect even after retries.
	ErrGatewayFailure = errors.New("gateway failure")

	ErrInvalidInput = errors.New("gateway invalid input")
)
