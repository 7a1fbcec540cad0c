package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps sessions in a single key/jsonb table. It exists for
// deployments that already run Postgres and want conversational state to
// survive restarts without adding Redis.
type PostgresStore struct {
	db    *sql.DB
	locks *keyLocks
}

// ConnectPostgres opens the pool, verifies the connection, and ensures the
// sessions table exists.
func ConnectPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS sessions (
		key        text PRIMARY KEY,
		data       jsonb NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	return &PostgresStore{db: db, locks: newKeyLocks()}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Session, error) {
	sess, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = newSession(key)
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *PostgresStore) Update(ctx context.Context, key string, mutate func(*Session)) error {
	unlock := s.locks.lock(key)
	defer unlock()

	sess, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = newSession(key)
	}
	mutate(sess)
	sess.UpdatedAt = time.Now().UTC()
	return s.save(ctx, sess)
}

func (s *PostgresStore) load(ctx context.Context, key string) (*Session, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select session %s: %w", key, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

func (s *PostgresStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.Key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (key, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		sess.Key, data, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.Key, err)
	}
	return nil
}
