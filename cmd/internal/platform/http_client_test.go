package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(nil, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c, srv
}

func TestHTTPClient_SendMessage_OK(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	})

	if err := c.SendMessage(context.Background(), "u1", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["user_id"] != "u1" || gotBody["text"] != "hello" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestHTTPClient_RateLimitHint(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         false,
			"error_code": 429,
			"parameters": map[string]any{"retry_after": 17},
		})
	})

	err := c.ApproveJoinRequest(context.Background(), "u1", "c1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rle.RetryAfter != 17*time.Second {
		t.Fatalf("RetryAfter = %s, want 17s", rle.RetryAfter)
	}
}

func TestHTTPClient_RateLimitWithoutHint(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 429})
	})

	err := c.SendMessage(context.Background(), "u1", "hi")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rle.RetryAfter != httpDefaultRetryAfter {
		t.Fatalf("RetryAfter = %s, want default %s", rle.RetryAfter, httpDefaultRetryAfter)
	}
}

func TestHTTPClient_FailureWrapsDelivery(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "bad request"})
	})

	if err := c.SendMessage(context.Background(), "u1", "hi"); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestHTTPClient_CreateSingleUseInvite(t *testing.T) {
	var gotBody map[string]any

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"invite_link": "https://x.example/+abc"},
		})
	})

	link, err := c.CreateSingleUseInvite(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CreateSingleUseInvite: %v", err)
	}
	if link != "https://x.example/+abc" {
		t.Fatalf("link = %q", link)
	}
	if gotBody["member_limit"] != float64(1) {
		t.Fatalf("member_limit = %v, want 1", gotBody["member_limit"])
	}
	if gotBody["creates_join_request"] != false {
		t.Fatalf("creates_join_request = %v, want false", gotBody["creates_join_request"])
	}
}

func TestHTTPClient_GetCommunity_PrivacyFromHandle(t *testing.T) {
	handle := "mycommunity"
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		res := map[string]any{"id": -100123, "title": "My Community", "type": "supergroup"}
		if handle != "" {
			res["username"] = handle
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": res})
	})

	got, err := c.GetCommunity(context.Background(), "-100123")
	if err != nil {
		t.Fatalf("GetCommunity: %v", err)
	}
	if got.Private || got.Handle != "mycommunity" {
		t.Fatalf("public community misread: %+v", got)
	}

	handle = ""
	got, err = c.GetCommunity(context.Background(), "-100123")
	if err != nil {
		t.Fatalf("GetCommunity: %v", err)
	}
	if !got.Private {
		t.Fatalf("community without handle should be private: %+v", got)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	base := time.Unix(1000, 0)

	if !rl.Allow(base) || !rl.Allow(base.Add(100*time.Millisecond)) {
		t.Fatal("first two events should pass")
	}
	if rl.Allow(base.Add(200 * time.Millisecond)) {
		t.Fatal("third event inside window should be denied")
	}
	if !rl.Allow(base.Add(1500 * time.Millisecond)) {
		t.Fatal("event after window slide should pass")
	}
}
