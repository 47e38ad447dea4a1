package platform

import "time"

// Security/performance limits for the event stream.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB
)

const (
	// Heartbeat defaults (can be overridden by env in event_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound event rate limits (events per window).
	rateLimitEvents = 240
	rateLimitWindow = 10 * time.Second
)
