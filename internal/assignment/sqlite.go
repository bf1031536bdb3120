package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fciannella/ace-versioning/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assignments (
	user_id      TEXT NOT NULL,
	character_id TEXT NOT NULL,
	version_id   TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	assigned_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, character_id)
);
CREATE TABLE IF NOT EXISTS assignment_events (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	character_id TEXT NOT NULL,
	version_id   TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	timestamp    TIMESTAMP NOT NULL,
	metadata     TEXT
);
CREATE INDEX IF NOT EXISTS idx_assignments_character ON assignments (character_id);
CREATE INDEX IF NOT EXISTS idx_events_character ON assignment_events (character_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON assignment_events (timestamp);
`

// NewSQLiteStores creates SQLite-backed stores at the given path. The
// schema is created on open. ":memory:" works for tests.
func NewSQLiteStores(path string) (StoreSet, error) {
	if strings.TrimSpace(path) == "" {
		return StoreSet{}, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent create races.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("create sqlite schema: %w", err)
	}
	return StoreSet{
		Assignments: &sqliteStore{db: db},
		Events:      &sqliteEventStore{db: db},
		closer:      db.Close,
	}, nil
}

type sqliteStore struct {
	db *sql.DB
}

func (s *sqliteStore) Get(ctx context.Context, userID, characterID string) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, character_id, version_id, strategy, assigned_at
		 FROM assignments WHERE user_id = ? AND character_id = ?`,
		userID, characterID)
	return scanAssignment(row)
}

func (s *sqliteStore) Put(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error) {
	if a == nil || a.UserID == "" || a.CharacterID == "" {
		return nil, false, fmt.Errorf("assignment user and character are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (user_id, character_id, version_id, strategy, assigned_at)
		 VALUES (?, ?, ?, ?, ?)
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
	// Lost the create race (or the row predates this call); adopt the
	// winner's record.
	existing, err := s.Get(ctx, a.UserID, a.CharacterID)
	if err != nil {
		return nil, false, fmt.Errorf("read back assignment: %w", err)
	}
	return existing, false, nil
}

func (s *sqliteStore) Overwrite(ctx context.Context, a *models.Assignment) error {
	if a == nil || a.UserID == "" || a.CharacterID == "" {
		return fmt.Errorf("assignment user and character are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (user_id, character_id, version_id, strategy, assigned_at)
		 VALUES (?, ?, ?, ?, ?)
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

func (s *sqliteStore) ListByCharacter(ctx context.Context, characterID string) ([]*models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, character_id, version_id, strategy, assigned_at
		 FROM assignments WHERE character_id = ? ORDER BY user_id`,
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

type sqliteEventStore struct {
	db *sql.DB
}

func (s *sqliteEventStore) Append(ctx context.Context, ev *models.AssignmentEvent) error {
	if ev == nil || ev.ID == "" {
		return fmt.Errorf("event id is required")
	}
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignment_events (id, user_id, character_id, version_id, event_type, timestamp, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.CharacterID, ev.VersionID, ev.EventType, ev.Timestamp, string(meta))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *sqliteEventStore) ListByCharacter(ctx context.Context, characterID string) ([]*models.AssignmentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, character_id, version_id, event_type, timestamp, metadata
		 FROM assignment_events WHERE character_id = ? ORDER BY timestamp`,
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

func (s *sqliteEventStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assignment_events WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return int(dropped), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.UserID, &a.CharacterID, &a.VersionID, &a.StrategyUsed, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return &a, nil
}

func scanEvent(row rowScanner) (*models.AssignmentEvent, error) {
	var ev models.AssignmentEvent
	var meta sql.NullString
	if err := row.Scan(&ev.ID, &ev.UserID, &ev.CharacterID, &ev.VersionID, &ev.EventType, &ev.Timestamp, &meta); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return &ev, nil
}
