// Package assignment persists sticky user-to-version assignments, appends
// usage events, and exposes the orchestration service the host agent
// runtime calls.
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/fciannella/ace-versioning/pkg/models"
)

var (
	// ErrNotFound is returned when no assignment exists for the key.
	ErrNotFound = errors.New("assignment: not found")
)

// Store persists the sticky Assignment records. Creation is a
// compare-and-set: concurrent first writes for the same key resolve to a
// single record, with losers reading back the winner's row.
type Store interface {
	// Get returns the assignment for the pair or ErrNotFound.
	Get(ctx context.Context, userID, characterID string) (*models.Assignment, error)

	// Put inserts the assignment if no record exists for its key. It
	// returns the stored record and whether this call created it; when a
	// record already exists that record is returned unchanged.
	Put(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error)

	// Overwrite unconditionally replaces (or creates) the record for the
	// assignment's key. Reassignment is the only caller.
	Overwrite(ctx context.Context, a *models.Assignment) error

	// ListByCharacter returns all assignments for a base character.
	ListByCharacter(ctx context.Context, characterID string) ([]*models.Assignment, error)
}

// EventStore appends to the assignment event log. The log is append-only;
// events are never mutated.
type EventStore interface {
	Append(ctx context.Context, ev *models.AssignmentEvent) error
	ListByCharacter(ctx context.Context, characterID string) ([]*models.AssignmentEvent, error)

	// Prune removes events older than the cutoff and returns how many were
	// dropped. Retention is an operator decision; nothing prunes
	// automatically unless a store is configured with a cap.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// StoreSet groups the storage dependencies for one backend.
type StoreSet struct {
	Assignments Store
	Events      EventStore
	closer      func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
