package settings

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
			return errors.New("settings: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("settings: invalid schema identifier")
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
		return nil, errors.New("settings: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Get returns the community's settings, defaults when unset.
func (s *PostgresStore) Get(ctx context.Context, communityID string) (Settings, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return Settings{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}

	table := pgIdent(s.schema, "community_settings")

	got := Settings{CommunityID: communityID}
	err := s.pool.QueryRow(ctx,
		`SELECT challenge_enabled, restrict_new_members
		   FROM `+table+` WHERE community_id = $1`,
		communityID,
	).Scan(&got.ChallengeEnabled, &got.RestrictNewMembers)
	if errors.Is(err, pgx.ErrNoRows) {
		return defaultsFor(communityID), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return got, nil
}

// SetChallengeEnabled flips the admission-challenge toggle.
func (s *PostgresStore) SetChallengeEnabled(ctx context.Context, communityID string, on bool) error {
	return s.upsert(ctx, communityID, "challenge_enabled", on)
}

// SetRestrictNewMembers flips the mute-on-admit toggle.
func (s *PostgresStore) SetRestrictNewMembers(ctx context.Context, communityID string, on bool) error {
	return s.upsert(ctx, communityID, "restrict_new_members", on)
}

func (s *PostgresStore) upsert(ctx context.Context, communityID, column string, on bool) error {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	table := pgIdent(s.schema, "community_settings")
	col := pgx.Identifier{column}.Sanitize()

	// Unset columns take their defaults on first insert; the targeted
	// column is then overwritten.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (community_id, challenge_enabled, restrict_new_members)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (community_id) DO UPDATE SET `+col+` = $4`,
		communityID, defaultOrValue(column, "challenge_enabled", on), defaultOrValue(column, "restrict_new_members", on), on,
	)
	return err
}

func defaultOrValue(target, column string, on bool) bool {
	if target == column {
		return on
	}
	switch column {
	case "challenge_enabled":
		return DefaultChallengeEnabled
	default:
		return DefaultRestrictNewMembers
	}
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
