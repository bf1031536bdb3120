package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/fciannella/ace-versioning/pkg/models"
)

// NewPostgresStoresFromDSN creates Postgres-backed stores using a DSN. The
// schema is expected to exist; see EnsurePostgresSchema.
func NewPostgresStoresFromDSN(dsn string, config *PostgresConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	return StoreSet{
		Assignments: &postgresStore{db: db},
		Events:      &postgresEventStore{db: db},
		closer:      db.Close,
	}, nil
}

// NewPostgresStores opens Postgres-backed stores and creates the schema if
// it is missing. Deployments that manage schema out of band should use
// NewPostgresStoresFromDSN instead.
func NewPostgresStores(ctx context.Context, dsn string, config *PostgresConfig) (StoreSet, error) {
	stores, err := NewPostgresStoresFromDSN(dsn, config)
	if err != nil {
		return StoreSet{}, err
	}
	if err := EnsurePostgresSchema(ctx, stores.Assignments.(*postgresStore).db); err != nil {
		_ = stores.Close()
		return StoreSet{}, fmt.Errorf("ensure schema: %w", err)
	}
	return stores, nil
}

// EnsurePostgresSchema creates the assignment tables if they are missing.
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assignments (
			user_id      TEXT NOT NULL,
			character_id TEXT NOT NULL,
			version_id   TEXT NOT NULL,
			strategy     TEXT NOT NULL,
			assigned_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, character_id)
		);
		CREATE TABLE IF NOT EXISTS assignment_events (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			character_id TEXT NOT NULL,
			version_id   TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			timestamp    TIMESTAMPTZ NOT NULL,
			metadata     JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_assignments_character ON assignments (character_id);
		CREATE INDEX IF NOT EXISTS idx_events_character ON assignment_events (character_id);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON assignment_events (timestamp)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type postgresStore struct {
	db *sql.DB
}

func (s *postgresStore) Get(ctx context.Context, userID, characterID string) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, character_id, version_id, strategy, assigned_at
		 FROM assignments WHERE user_id = $1 AND character_id = $2`,
		userID, characterID)
	return scanAssignment(row)
}

func (s *postgresStore) Put(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error) {
	if a == nil || a.UserID == "" || a.CharacterID == "" {
		return nil, false, fmt.Errorf("assignment user and character are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (user_id, character_id, version_id, strategy, assigned_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, character_id) DO NOTHING`,
		a.UserID, a.CharacterID, a.VersionID, a.StrategyUsed, a.AssignedAt)
	if err != nil {
		return nil, false, fmt.Errorf("create assignment: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create assignment: %w", err)
	}
	if inserted > 0 {
		return a.Clone(), true, nil
	}
	existing, err := s.Get(ctx, a.UserID, a.CharacterID)
	if err != nil {
		return nil, false, fmt.Errorf("read back assignment: %w", err)
	}
	return existing, false, nil
}

func (s *postgresStore) Overwrite(ctx context.Context, a *models.Assignment) error {
	if a == nil || a.UserID == "" || a.CharacterID == "" {
		return fmt.Errorf("assignment user and character are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (user_id, character_id, version_id, strategy, assigned_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, character_id) DO UPDATE SET
			version_id = excluded.version_id,
			strategy = excluded.strategy,
			assigned_at = excluded.assigned_at`,
		a.UserID, a.CharacterID, a.VersionID, a.StrategyUsed, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("overwrite assignment: %w", err)
	}
	return nil
}

func (s *postgresStore) ListByCharacter(ctx context.Context, characterID string) ([]*models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, character_id, version_id, strategy, assigned_at
		 FROM assignments WHERE character_id = $1 ORDER BY user_id`,
		characterID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.UserID, &a.CharacterID, &a.VersionID, &a.StrategyUsed, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

type postgresEventStore struct {
	db *sql.DB
}

func (s *postgresEventStore) Append(ctx context.Context, ev *models.AssignmentEvent) error {
	if ev == nil || ev.ID == "" {
		return fmt.Errorf("event id is required")
	}
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignment_events (id, user_id, character_id, version_id, event_type, timestamp, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.UserID, ev.CharacterID, ev.VersionID, ev.EventType, ev.Timestamp, meta)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *postgresEventStore) ListByCharacter(ctx context.Context, characterID string) ([]*models.AssignmentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, character_id, version_id, event_type, timestamp, metadata
		 FROM assignment_events WHERE character_id = $1 ORDER BY timestamp`,
		characterID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.AssignmentEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *postgresEventStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assignment_events WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return int(dropped), nil
}
