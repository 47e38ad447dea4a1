package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatekeep/cmd/internal/settings"
	"gatekeep/cmd/internal/violations"
)

func newTestMux(t *testing.T, cfg Config) (*http.ServeMux, settings.Store, violations.Store, *Metrics) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sets := settings.NewMemoryStore()
	viols := violations.NewMemoryStore()
	metrics := NewMetrics()
	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, nil, false, metrics, sets, viols)
	return mux, sets, viols, metrics
}

func TestHealthz(t *testing.T) {
	mux, _, _, _ := newTestMux(t, Config{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestReadyz_RequireDBWithoutDB(t *testing.T) {
	mux, _, _, _ := newTestMux(t, Config{ReadinessRequireDB: true})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503 when DB required but absent", rec.Code)
	}
}

func TestReadyz_NoDBRequirement(t *testing.T) {
	mux, _, _, _ := newTestMux(t, Config{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux, _, _, metrics := newTestMux(t, Config{})
	metrics.ChallengeIssued("text")
	metrics.ApprovalResult("ok")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `gatekeep_challenges_issued_total{kind="text"} 1`) {
		t.Fatalf("issued counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, `gatekeep_approvals_total{result="ok"} 1`) {
		t.Fatal("approvals counter missing from exposition")
	}
}

func TestSettingsAPI_GetDefaults(t *testing.T) {
	mux, _, _, _ := newTestMux(t, Config{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/settings?community_id=c1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("settings GET = %d: %s", rec.Code, rec.Body.String())
	}
	var got settingsReply
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CommunityID != "c1" || !got.ChallengeEnabled || got.RestrictNewMembers {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestSettingsAPI_PatchRoundTrip(t *testing.T) {
	mux, sets, _, _ := newTestMux(t, Config{})
	body := strings.NewReader(`{"community_id":"c1","challenge_enabled":false,"restrict_new_members":true}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/settings", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("settings PATCH = %d: %s", rec.Code, rec.Body.String())
	}
	var got settingsReply
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ChallengeEnabled || !got.RestrictNewMembers {
		t.Fatalf("patch not applied: %+v", got)
	}

	st, err := sets.Get(t.Context(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if st.ChallengeEnabled || !st.RestrictNewMembers {
		t.Fatalf("store not updated: %+v", st)
	}
}

func TestSettingsAPI_BadRequests(t *testing.T) {
	mux, _, _, _ := newTestMux(t, Config{})

	cases := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"get without community", http.MethodGet, "/api/v1/settings", ""},
		{"patch without community", http.MethodPatch, "/api/v1/settings", `{"challenge_enabled":true}`},
		{"patch without fields", http.MethodPatch, "/api/v1/settings", `{"community_id":"c1"}`},
		{"patch invalid json", http.MethodPatch, "/api/v1/settings", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400", rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/settings", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE = %d, want 405", rec.Code)
	}
}

func TestViolationsAPI(t *testing.T) {
	mux, _, viols, _ := newTestMux(t, Config{})

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		at := now.Add(time.Duration(i) * time.Second)
		obs := violations.Observation{
			ID:          violations.NewID(at),
			UserID:      "u1",
			CommunityID: "c1",
			Kind:        violations.KindChallengeFailed,
			At:          at,
		}
		if err := viols.Track(t.Context(), obs); err != nil {
			t.Fatal(err)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/violations?community_id=c1&limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("violations GET = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Violations []violations.Observation `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Violations) != 2 {
		t.Fatalf("len = %d, want 2", len(got.Violations))
	}
	if !got.Violations[0].At.After(got.Violations[1].At) {
		t.Fatal("violations must be newest-first")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/violations?community_id=c1&limit=9999", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized limit = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/violations", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing community = %d, want 400", rec.Code)
	}
}
