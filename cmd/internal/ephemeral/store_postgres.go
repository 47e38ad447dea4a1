package ephemeral

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Expiry model:
// - Every read filters on expires_at; expired rows are indistinguishable
//   from missing rows. Rows are physically removed opportunistically on
//   writes, never by a dedicated sweeper.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "gatekeep").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("ephemeral: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("ephemeral: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "gatekeep",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("ephemeral: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// SetWithTTL upserts the entry, superseding any prior value and TTL.
func (s *PostgresStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if s == nil || s.pool == nil {
		return errors.New("ephemeral: nil store")
	}
	if strings.TrimSpace(key) == "" || ttl <= 0 {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := pgIdent(s.schema, "ephemeral_entries")

	// Upsert serializes concurrent writers on the primary key; last write
	// wins, which matches the Store contract.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+entries+` (key, value, expires_at)
		 VALUES ($1, $2, now() + $3)
		 ON CONFLICT (key) DO UPDATE
		   SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, ttl,
	)
	if err != nil {
		return err
	}

	// Opportunistic expiry cleanup; bounded and best-effort.
	_, _ = s.pool.Exec(ctx,
		`DELETE FROM `+entries+`
		  WHERE ctid IN (
		    SELECT ctid FROM `+entries+` WHERE expires_at <= now() LIMIT 64
		  )`,
	)
	return nil
}

// Get returns the live value for key or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.pool == nil {
		return "", errors.New("ephemeral: nil store")
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	entries := pgIdent(s.schema, "ephemeral_entries")

	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM `+entries+` WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Delete removes key. Missing keys are not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil {
		return errors.New("ephemeral: nil store")
	}
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := pgIdent(s.schema, "ephemeral_entries")
	_, err := s.pool.Exec(ctx, `DELETE FROM `+entries+` WHERE key = $1`, key)
	return err
}

// TTLRemaining returns the time left before key expires.
func (s *PostgresStore) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("ephemeral: nil store")
	}
	if strings.TrimSpace(key) == "" {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entries := pgIdent(s.schema, "ephemeral_entries")

	var left time.Duration
	err := s.pool.QueryRow(ctx,
		`SELECT expires_at - now() FROM `+entries+`
		  WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return left, nil
}

// Exists reports whether key holds a live entry.
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
