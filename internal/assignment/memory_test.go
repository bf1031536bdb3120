package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fciannella/ace-versioning/pkg/models"
)

func testAssignment(userID, versionID string) *models.Assignment {
	return &models.Assignment{
		UserID:       userID,
		CharacterID:  "plato",
		VersionID:    versionID,
		StrategyUsed: "weighted",
		AssignedAt:   time.Now().UTC(),
	}
}

func TestMemoryStore_PutIsCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, created, err := store.Put(ctx, testAssignment("u1", "base"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !created {
		t.Error("first Put() should create")
	}
	if first.VersionID != "base" {
		t.Errorf("VersionID = %q, want %q", first.VersionID, "base")
	}

	second, created, err := store.Put(ctx, testAssignment("u1", "enhanced"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if created {
		t.Error("second Put() for the same key must not create")
	}
	if second.VersionID != "base" {
		t.Errorf("loser must read back winner's version, got %q", second.VersionID)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "u1", "plato"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ConcurrentPutSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const n = 32
	var wg sync.WaitGroup
	results := make([]string, n)
	createdCount := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			version := "base"
			if i%2 == 1 {
				version = "enhanced"
			}
			a, created, err := store.Put(ctx, testAssignment("u1", version))
			if err != nil {
				t.Errorf("Put() error = %v", err)
				return
			}
			results[i] = a.VersionID
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	creations := 0
	for _, c := range createdCount {
		if c {
			creations++
		}
	}
	if creations != 1 {
		t.Errorf("creations = %d, want exactly 1", creations)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("divergent assignments: %q vs %q", results[i], results[0])
		}
	}
}

func TestMemoryStore_OverwriteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, _, err := store.Put(ctx, testAssignment("u1", "base")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Overwrite(ctx, testAssignment("u1", "enhanced")); err != nil {
		t.Fatalf("Overwrite() error = %v", err)
	}

	got, err := store.Get(ctx, "u1", "plato")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.VersionID != "enhanced" {
		t.Errorf("VersionID after Overwrite = %q, want %q", got.VersionID, "enhanced")
	}

	if _, _, err := store.Put(ctx, testAssignment("u2", "base")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	list, err := store.ListByCharacter(ctx, "plato")
	if err != nil {
		t.Fatalf("ListByCharacter() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByCharacter() returned %d records, want 2", len(list))
	}
	if list[0].UserID != "u1" || list[1].UserID != "u2" {
		t.Errorf("list not sorted by user: %q, %q", list[0].UserID, list[1].UserID)
	}
}

func testEvent(id string, eventType string, ts time.Time) *models.AssignmentEvent {
	return &models.AssignmentEvent{
		ID:          id,
		UserID:      "u1",
		CharacterID: "plato",
		VersionID:   "base",
		EventType:   eventType,
		Timestamp:   ts,
	}
}

func TestMemoryEventStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore(0)

	now := time.Now().UTC()
	for i, id := range []string{"e1", "e2", "e3"} {
		if err := store.Append(ctx, testEvent(id, "message_sent", now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	events, err := store.ListByCharacter(ctx, "plato")
	if err != nil {
		t.Fatalf("ListByCharacter() error = %v", err)
	}
	if len(events) != 3 {
		t.Errorf("len(events) = %d, want 3", len(events))
	}
}

func TestMemoryEventStore_RetentionCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore(2)

	now := time.Now().UTC()
	for i, id := range []string{"e1", "e2", "e3"} {
		if err := store.Append(ctx, testEvent(id, "message_sent", now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	events, err := store.ListByCharacter(ctx, "plato")
	if err != nil {
		t.Fatalf("ListByCharacter() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2 with cap", len(events))
	}
	if events[0].ID != "e2" || events[1].ID != "e3" {
		t.Errorf("cap must drop oldest, kept %q and %q", events[0].ID, events[1].ID)
	}
}

func TestMemoryEventStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore(0)

	cutoff := time.Now().UTC()
	if err := store.Append(ctx, testEvent("old", "message_sent", cutoff.Add(-time.Hour))); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, testEvent("new", "message_sent", cutoff.Add(time.Hour))); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	dropped, err := store.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if dropped != 1 {
		t.Errorf("Prune() dropped = %d, want 1", dropped)
	}

	events, err := store.ListByCharacter(ctx, "plato")
	if err != nil {
		t.Fatalf("ListByCharacter() error = %v", err)
	}
	if len(events) != 1 || events[0].ID != "new" {
		t.Errorf("expected only the new event to survive, got %d", len(events))
	}
}
