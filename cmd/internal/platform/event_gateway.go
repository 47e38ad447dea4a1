package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	v1 "gatekeep/contracts/platform/v1"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "gatekeep.platform.v1"

	wsDefaultReadIdle = 2 * time.Minute
	wsCloseGrace      = 1 * time.Second

	wsMaxPingFailures = 3
)

// EventHandler receives validated platform events.
//
// Handlers own their errors: a handler failure is logged and the stream
// keeps reading. Only transport failures tear the connection down.
type EventHandler interface {
	HandleJoinRequest(ctx context.Context, p v1.JoinRequestPayload) error
	HandleStart(ctx context.Context, p v1.StartPayload) error
	HandleMessage(ctx context.Context, p v1.MessagePayload) error
	HandleMemberUpdated(ctx context.Context, p v1.MemberUpdatedPayload) error
}

// EventGateway is the inbound side of the platform integration: it dials
// the platform's event stream, validates envelopes, and dispatches them.
//
// It enforces subprotocol selection, rate limits, heartbeats, and
// reconnects with exponential backoff until its context is cancelled.
type EventGateway struct {
	log     *slog.Logger
	url     string
	handler EventHandler

	readIdleTimeout time.Duration

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration

	// dial is swappable in tests.
	dial func(ctx context.Context) (*websocket.Conn, error)
}

// NewEventGateway constructs a gateway for the given stream URL.
func NewEventGateway(log *slog.Logger, url string, handler EventHandler) (*EventGateway, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: empty stream url", ErrInvalidInput)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidInput)
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &EventGateway{log: log, url: url, handler: handler}

	g.readIdleTimeout = envDurationWS("GATEKEEP_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)
	g.heartbeatEvery = envDurationWS("GATEKEEP_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("GATEKEEP_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)
	g.rateEvents = envIntWS("GATEKEEP_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("GATEKEEP_WS_RATE_WINDOW", rateLimitWindow)

	g.dial = func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, g.url, &websocket.DialOptions{
			Subprotocols: []string{wsSubprotocolV1},
		})
		return conn, err
	}
	return g, nil
}

// Run consumes the event stream until ctx is cancelled.
// Connection drops are retried with exponential backoff.
func (g *EventGateway) Run(ctx context.Context) error {
	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			c, err := g.dial(ctx)
			if err != nil {
				g.log.Info("events.dial.fail", "url", g.url, "err", err)
				return nil, err
			}
			return c, nil
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("events dial: %w", err)
		}

		g.log.Info("events.connected", "url", g.url)
		err = g.consume(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.log.Info("events.disconnected", "err", err)
	}
}

// consume runs the read loop on one connection until it fails or ctx ends.
func (g *EventGateway) consume(ctx context.Context, conn *websocket.Conn) error {
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != "" && sp != wsSubprotocolV1 {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol mismatch")
		return fmt.Errorf("unexpected subprotocol: %s", sp)
	}

	conn.SetReadLimit(maxFrameBytes)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-connCtx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(connCtx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("events.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
						cancel()
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	var loopErr error
readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(connCtx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				loopErr = errors.New("peer closed")
			case readErrCtxDone:
				loopErr = connCtx.Err()
			case readErrConnClosed:
				loopErr = errors.New("conn closed")
			case readErrBadJSON:
				g.log.Info("events.read.bad_json", "err", err)
				continue readLoop
			default:
				loopErr = err
			}
			break readLoop
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.log.Warn("events.rate_limited", "limit", g.rateEvents, "window", g.rateWindow)
			_ = conn.Close(websocket.StatusPolicyViolation, "rate limited")
			loopErr = errors.New("inbound rate limit exceeded")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.log.Info("events.envelope.invalid", "kind", env.Kind, "err", err)
			continue readLoop
		}

		g.dispatch(connCtx, env)
	}

	cancel()
	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	return loopErr
}

// dispatch routes one validated envelope. Handler errors are logged, not fatal.
func (g *EventGateway) dispatch(ctx context.Context, env v1.Envelope) {
	var err error
	switch env.Kind {
	case v1.KindJoinRequest:
		var p v1.JoinRequestPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			err = g.handler.HandleJoinRequest(ctx, p)
		}
	case v1.KindStart:
		var p v1.StartPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			err = g.handler.HandleStart(ctx, p)
		}
	case v1.KindMessage:
		var p v1.MessagePayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			err = g.handler.HandleMessage(ctx, p)
		}
	case v1.KindMemberUpdated:
		var p v1.MemberUpdatedPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			err = g.handler.HandleMemberUpdated(ctx, p)
		}
	case v1.KindError:
		var p v1.ErrorPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			g.log.Warn("events.platform_error", "code", p.Code, "message", p.Message)
		}
		return
	default:
		g.log.Info("events.unsupported", "kind", env.Kind)
		return
	}

	if err != nil {
		g.log.Error("events.handle.fail", "kind", env.Kind, "id", env.ID, "err", err)
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// readEnvelope wraps json.Unmarshal failures; typed matching keeps a
	// malformed frame from tearing down the connection.
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	if errors.As(err, &syn) || errors.As(err, &typ) {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- env helpers ----

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
