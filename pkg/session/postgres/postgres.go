// Package postgres provides a PostgreSQL session.Store for deployments that
// run several weft instances behind one load balancer. It uses pgx/v5 for
// connection pooling and JSONB for session data.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/weft/pkg/session"
)

// Store is a PostgreSQL-backed session.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ session.Store = (*Store)(nil)

// New creates a PostgreSQL store. If MigrateOnStart is true, the schema is
// created automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Get returns a live session. Expired rows are treated as missing.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		sess      session.Session
		dataJSON  []byte
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, tenant_id, service_tier, logged_in, data, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > now())
	`, id).Scan(
		&sess.ID, &sess.Subject, &sess.TenantID, &sess.ServiceTier,
		&sess.LoggedIn, &dataJSON, &sess.CreatedAt, &expiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if err := json.Unmarshal(dataJSON, &sess.Data); err != nil {
		return nil, fmt.Errorf("unmarshaling session data: %w", err)
	}
	if expiresAt != nil {
		sess.ExpiresAt = *expiresAt
	}
	return &sess, nil
}

// Save upserts a session.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	data := sess.Data
	if data == nil {
		data = map[string]string{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling session data: %w", err)
	}

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var expiresAt *time.Time
	if !sess.ExpiresAt.IsZero() {
		expiresAt = &sess.ExpiresAt
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject, tenant_id, service_tier, logged_in, data, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			tenant_id = EXCLUDED.tenant_id,
			service_tier = EXCLUDED.service_tier,
			logged_in = EXCLUDED.logged_in,
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at
	`,
		sess.ID, sess.Subject, sess.TenantID, sess.ServiceTier,
		sess.LoggedIn, dataJSON, createdAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// DeleteExpired purges expired sessions and returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
