package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatekeep/cmd/internal/settings"
	"gatekeep/cmd/internal/violations"

	"github.com/jackc/pgx/v5/pgxpool"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	metrics *Metrics,
	sets settings.Store,
	viols violations.Store,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	mux.HandleFunc("/api/v1/settings", settingsHandler(log, sets))
	mux.HandleFunc("/api/v1/violations", violationsHandler(log, viols))
}

type settingsPatch struct {
	CommunityID        string `json:"community_id"`
	ChallengeEnabled   *bool  `json:"challenge_enabled,omitempty"`
	RestrictNewMembers *bool  `json:"restrict_new_members,omitempty"`
}

type settingsReply struct {
	CommunityID        string `json:"community_id"`
	ChallengeEnabled   bool   `json:"challenge_enabled"`
	RestrictNewMembers bool   `json:"restrict_new_members"`
}

// settingsHandler exposes per-community toggles to operators.
func settingsHandler(log Logger, sets settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			commID := strings.TrimSpace(r.URL.Query().Get("community_id"))
			if commID == "" {
				http.Error(w, "community_id required", http.StatusBadRequest)
				return
			}
			st, err := sets.Get(r.Context(), commID)
			if err != nil {
				log.Error("api.settings.get.fail", "community_id", commID, "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, settingsReply{
				CommunityID:        st.CommunityID,
				ChallengeEnabled:   st.ChallengeEnabled,
				RestrictNewMembers: st.RestrictNewMembers,
			})

		case http.MethodPatch, http.MethodPut:
			var p settingsPatch
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&p); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
			commID := strings.TrimSpace(p.CommunityID)
			if commID == "" {
				http.Error(w, "community_id required", http.StatusBadRequest)
				return
			}
			if p.ChallengeEnabled == nil && p.RestrictNewMembers == nil {
				http.Error(w, "nothing to change", http.StatusBadRequest)
				return
			}
			if p.ChallengeEnabled != nil {
				if err := sets.SetChallengeEnabled(r.Context(), commID, *p.ChallengeEnabled); err != nil {
					log.Error("api.settings.set.fail", "community_id", commID, "err", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
			}
			if p.RestrictNewMembers != nil {
				if err := sets.SetRestrictNewMembers(r.Context(), commID, *p.RestrictNewMembers); err != nil {
					log.Error("api.settings.set.fail", "community_id", commID, "err", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
			}
			st, err := sets.Get(r.Context(), commID)
			if err != nil {
				log.Error("api.settings.get.fail", "community_id", commID, "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			log.Info("api.settings.updated", "community_id", commID)
			writeJSON(w, http.StatusOK, settingsReply{
				CommunityID:        st.CommunityID,
				ChallengeEnabled:   st.ChallengeEnabled,
				RestrictNewMembers: st.RestrictNewMembers,
			})

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// violationsHandler exposes the recent audit trail per community.
func violationsHandler(log Logger, viols violations.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		commID := strings.TrimSpace(r.URL.Query().Get("community_id"))
		if commID == "" {
			http.Error(w, "community_id required", http.StatusBadRequest)
			return
		}
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 500 {
				http.Error(w, "limit must be in 1..500", http.StatusBadRequest)
				return
			}
			limit = n
		}

		out, err := viols.Recent(r.Context(), commID, limit)
		if err != nil {
			log.Error("api.violations.list.fail", "community_id", commID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"violations": out})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
