// Package v1 defines the Gatekeep Platform Event Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the bot and the platform edge to keep the wire
// protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Event kind constants (wire-stable).
const (
	// KindJoinRequest is emitted when a user asks to join a community
	// (platform -> bot).
	KindJoinRequest = "join_request"

	// KindStart is emitted when a user opens the bot via a deep link
	// carrying an entry token (platform -> bot).
	KindStart = "start"

	// KindMessage is a direct message from a user to the bot, normally a
	// challenge answer (platform -> bot).
	KindMessage = "message"

	// KindMemberUpdated is emitted when a member's status in a community
	// changes (platform -> bot). Delivery is at-least-once and may be
	// out of order.
	KindMemberUpdated = "member_updated"

	// KindError is a generic error envelope (platform -> bot).
	KindError = "error"
)

// AllowedKinds is the closed set of event kinds this protocol version accepts.
var AllowedKinds = map[string]struct{}{
	KindJoinRequest:   {},
	KindStart:         {},
	KindMessage:       {},
	KindMemberUpdated: {},
	KindError:         {},
}

// Envelope is the canonical wire wrapper for platform events.
type Envelope struct {
	V       string          `json:"v"`
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Kind) == "" {
		return errors.New("missing field: kind")
	}
	if _, ok := AllowedKinds[e.Kind]; !ok {
		return fmt.Errorf("unsupported kind: %s", e.Kind)
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("missing field: id")
	}
	if e.TS.IsZero() {
		return errors.New("missing field: ts")
	}
	if e.Payload == nil {
		return errors.New("missing field: payload")
	}
	return nil
}
