// Package app wires the Gatekeep runtime: config, logging, metrics, the
// admission pipeline, and the platform gateways.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gatekeep/cmd/internal/admission"
	"gatekeep/cmd/internal/ephemeral"
	"gatekeep/cmd/internal/gateway"
	"gatekeep/cmd/internal/moderation"
	"gatekeep/cmd/internal/platform"
	"gatekeep/cmd/internal/settings"
	"gatekeep/cmd/internal/violations"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Gatekeep runtime: it owns HTTP wiring, the admission
// pipeline, and the platform event gateway.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *Metrics

	eph   ephemeral.Store
	sets  settings.Store
	viols violations.Store

	admission  *admission.Service
	moderation *moderation.Service

	// events is nil when no stream URL is configured (HTTP-only mode).
	events *platform.EventGateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, eph, sets, viols, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()

	client, err := newPlatformClient(cfg, log)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	gate, err := gateway.NewService(log, client, eph)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	adm, err := admission.NewService(
		log, admission.LoadConfigFromEnv(),
		eph, client, gate, sets, viols,
		admission.WithHooks(metrics),
	)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	mod, err := moderation.NewService(log, client, eph, sets, viols, moderation.WithHooks(metrics))
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	var events *platform.EventGateway
	if cfg.EventsURL != "" {
		events, err = platform.NewEventGateway(log, cfg.EventsURL, &eventRouter{
			log:        log,
			admission:  adm,
			moderation: mod,
		})
		if err != nil {
			_ = st.Close(context.Background())
			return nil, err
		}
	} else {
		log.Info("events.disabled.no_stream_url")
	}

	return &App{
		cfg:        cfg,
		log:        log,
		store:      st,
		dbPool:     dbPool,
		dbEnabled:  dbEnabled,
		metrics:    metrics,
		eph:        eph,
		sets:       sets,
		viols:      viols,
		admission:  adm,
		moderation: mod,
		events:     events,
	}, nil
}

// Run starts the HTTP server and the event gateway, blocking until
// context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.sets, a.viols)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"events_enabled", a.events != nil)

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	if a.events != nil {
		g.Go(func() error {
			err := a.events.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("events.fail", "err", err)
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-runCtx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()

	_ = a.admission.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := a.store.Close(closeCtx); cerr != nil {
		a.log.Error("store.close.fail", "err", cerr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, ephemeral.Store, settings.Store, violations.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_stores")
		return nopStore{}, nil, false,
			ephemeral.NewMemoryStore(), settings.NewMemoryStore(), violations.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, nil, err
	}

	log.Info("db.enabled.postgres_stores")

	// Ownership model:
	// - app owns pool lifecycle
	// - each store's Close() is a no-op
	eph, err := ephemeral.NewPostgresStore(pool) // default schema "gatekeep"
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, nil, err
	}
	sets, err := settings.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, nil, err
	}
	viols, err := violations.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, nil, err
	}

	return dbStore{pool: pool}, pool, true, eph, sets, viols, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	// The pool is owned here; store Close() methods are no-ops.
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// newPlatformClient builds the outbound client, or a logging stub when
// no API URL is configured (dev/dry-run mode).
func newPlatformClient(cfg Config, log Logger) (platform.Client, error) {
	if cfg.PlatformAPIURL == "" {
		log.Info("platform.client.dry_run")
		return dryRunClient{log: log}, nil
	}
	return platform.NewHTTPClient(log, cfg.PlatformAPIURL)
}

// dryRunClient logs outbound calls instead of performing them.
type dryRunClient struct {
	log Logger
}

func (c dryRunClient) SendMessage(_ context.Context, userID, text string) error {
	c.log.Info("dryrun.send_message", "user_id", userID, "text", text)
	return nil
}

func (c dryRunClient) SendChallenge(_ context.Context, userID string, artifact []byte, caption string) error {
	c.log.Info("dryrun.send_challenge", "user_id", userID, "artifact_bytes", len(artifact), "caption", caption)
	return nil
}

func (c dryRunClient) ApproveJoinRequest(_ context.Context, userID, communityID string) error {
	c.log.Info("dryrun.approve", "user_id", userID, "community_id", communityID)
	return nil
}

func (c dryRunClient) DeclineJoinRequest(_ context.Context, userID, communityID string) error {
	c.log.Info("dryrun.decline", "user_id", userID, "community_id", communityID)
	return nil
}

func (c dryRunClient) CreateSingleUseInvite(_ context.Context, communityID string) (string, error) {
	c.log.Info("dryrun.invite", "community_id", communityID)
	return "https://invite.invalid/" + communityID, nil
}

func (c dryRunClient) RestrictMember(_ context.Context, userID, communityID string, d time.Duration) error {
	c.log.Info("dryrun.restrict", "user_id", userID, "community_id", communityID, "duration", d)
	return nil
}

func (c dryRunClient) GetCommunity(_ context.Context, communityID string) (platform.Community, error) {
	return platform.Community{ID: communityID, Private: true}, nil
}
