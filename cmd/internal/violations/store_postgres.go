package violations

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
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
			return errors.New("violations: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("violations: invalid schema identifier")
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
		return nil, errors.New("violations: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Track appends one observation. Conflicting IDs are ignored, keeping
// retried writes idempotent.
func (s *PostgresStore) Track(ctx context.Context, obs Observation) error {
	if err := validate(obs); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	table := pgIdent(s.schema, "violations")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (id, user_id, community_id, kind, at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		obs.ID, obs.UserID, obs.CommunityID, obs.Kind, obs.At.UTC(),
	)
	return err
}

// Recent returns the newest observations for a community, newest first.
func (s *PostgresStore) Recent(ctx context.Context, communityID string, limit int) ([]Observation, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" || limit <= 0 {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := pgIdent(s.schema, "violations")
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, community_id, kind, at
		   FROM `+table+`
		  WHERE community_id = $1
		  ORDER BY id DESC
		  LIMIT $2`,
		communityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Observation, 0, limit)
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.ID, &obs.UserID, &obs.CommunityID, &obs.Kind, &obs.At); err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// CountByUser returns how many observations of kind exist for the user.
func (s *PostgresStore) CountByUser(ctx context.Context, userID, communityID, kind string) (int, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(communityID) == "" || strings.TrimSpace(kind) == "" {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	table := pgIdent(s.schema, "violations")
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+table+`
		  WHERE user_id = $1 AND community_id = $2 AND kind = $3`,
		userID, communityID, kind,
	).Scan(&n)
	return n, err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
