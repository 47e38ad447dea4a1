package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "gatekeep/contracts/platform/v1"

	"github.com/coder/websocket"
)

type recordingHandler struct {
	mu      sync.Mutex
	joins   []v1.JoinRequestPayload
	starts  []v1.StartPayload
	msgs    []v1.MessagePayload
	updates []v1.MemberUpdatedPayload
	seen    chan struct{}
}

func newRecordingHandler(expect int) *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, expect)}
}

func (h *recordingHandler) HandleJoinRequest(_ context.Context, p v1.JoinRequestPayload) error {
	h.mu.Lock()
	h.joins = append(h.joins, p)
	h.mu.Unlock()
	h.seen <- struct{}{}
	return nil
}

func (h *recordingHandler) HandleStart(_ context.Context, p v1.StartPayload) error {
	h.mu.Lock()
	h.starts = append(h.starts, p)
	h.mu.Unlock()
	h.seen <- struct{}{}
	return nil
}

func (h *recordingHandler) HandleMessage(_ context.Context, p v1.MessagePayload) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, p)
	h.mu.Unlock()
	h.seen <- struct{}{}
	return nil
}

func (h *recordingHandler) HandleMemberUpdated(_ context.Context, p v1.MemberUpdatedPayload) error {
	h.mu.Lock()
	h.updates = append(h.updates, p)
	h.mu.Unlock()
	h.seen <- struct{}{}
	return nil
}

func testEnvelope(t *testing.T, kind string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{
		V:       v1.Version,
		Kind:    kind,
		ID:      randomHex(10),
		TS:      time.Now().UTC(),
		Payload: raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func TestEventGateway_DispatchesValidEnvelopes(t *testing.T) {
	frames := [][]byte{
		testEnvelope(t, v1.KindJoinRequest, v1.JoinRequestPayload{UserID: "u1", CommunityID: "c1"}),
		[]byte("{not json"), // skipped, must not kill the stream
		testEnvelope(t, v1.KindStart, v1.StartPayload{UserID: "u1", EntryToken: "tok"}),
		testEnvelope(t, "bogus.kind", map[string]string{}), // invalid, skipped
		testEnvelope(t, v1.KindMessage, v1.MessagePayload{UserID: "u1", Text: "42"}),
		testEnvelope(t, v1.KindMemberUpdated, v1.MemberUpdatedPayload{
			UserID: "u1", CommunityID: "c1",
			Previous: v1.MemberStateAbsent, Current: v1.MemberStateActive,
		}),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{wsSubprotocolV1},
		})
		if err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, f); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		_, _, _ = conn.Read(r.Context())
	}))
	t.Cleanup(srv.Close)

	h := newRecordingHandler(8)
	g, err := NewEventGateway(nil, "ws"+strings.TrimPrefix(srv.URL, "http"), h)
	if err != nil {
		t.Fatalf("NewEventGateway: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(ctx)
	}()

	for i := 0; i < 4; i++ {
		select {
		case <-h.seen:
		case <-ctx.Done():
			t.Fatal("timed out waiting for dispatched events")
		}
	}
	cancel()
	<-done

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.joins) != 1 || h.joins[0].UserID != "u1" || h.joins[0].CommunityID != "c1" {
		t.Fatalf("joins = %+v", h.joins)
	}
	if len(h.starts) != 1 || h.starts[0].EntryToken != "tok" {
		t.Fatalf("starts = %+v", h.starts)
	}
	if len(h.msgs) != 1 || h.msgs[0].Text != "42" {
		t.Fatalf("msgs = %+v", h.msgs)
	}
	if len(h.updates) != 1 || h.updates[0].Current != v1.MemberStateActive {
		t.Fatalf("updates = %+v", h.updates)
	}
}

func TestEventGateway_RejectsBadConstruction(t *testing.T) {
	if _, err := NewEventGateway(nil, "", newRecordingHandler(1)); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewEventGateway(nil, "ws://x", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestClassifyReadErr_TypedJSONFailures(t *testing.T) {
	var env v1.Envelope

	synErr := json.Unmarshal([]byte(`{"v":"1",`), &env)
	if got := classifyReadErr(synErr); got != readErrBadJSON {
		t.Fatalf("syntax error classified as %v, want bad json", got)
	}

	typeErr := json.Unmarshal([]byte(`{"v":7}`), &env)
	if got := classifyReadErr(typeErr); got != readErrBadJSON {
		t.Fatalf("type error classified as %v, want bad json", got)
	}

	if got := classifyReadErr(context.Canceled); got != readErrCtxDone {
		t.Fatalf("context cancellation classified as %v", got)
	}
}
