package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/fciannella/ace-versioning/internal/assignment"
	"github.com/fciannella/ace-versioning/internal/versioning"
	"github.com/fciannella/ace-versioning/pkg/models"
)

func newRegistry(t *testing.T, characters ...string) *versioning.Registry {
	t.Helper()
	r := versioning.NewRegistry()
	for _, id := range characters {
		err := r.Register(versioning.VersionConfig{
			CharacterID:      id,
			VersionIDs:       []string{"base", "enhanced"},
			DefaultVersionID: "base",
			Strategy: versioning.StrategyConfig{
				Kind:    versioning.StrategyWeighted,
				Weights: map[string]float64{"base": 0.6, "enhanced": 0.4},
			},
		})
		if err != nil {
			t.Fatalf("Register(%q) error = %v", id, err)
		}
	}
	return r
}

func seedAssignments(t *testing.T, store assignment.Store, characterID string, perVersion map[string]int) {
	t.Helper()
	i := 0
	for version, count := range perVersion {
		for j := 0; j < count; j++ {
			_, _, err := store.Put(context.Background(), &models.Assignment{
				UserID:       fmt.Sprintf("u%d", i),
				CharacterID:  characterID,
				VersionID:    version,
				StrategyUsed: "weighted",
				AssignedAt:   time.Now().UTC(),
			})
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			i++
		}
	}
}

func TestAggregator_AssignmentAnalytics(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewMemoryStore()
	agg := NewAggregator(newRegistry(t, "plato"), store, nil)

	seedAssignments(t, store, "plato", map[string]int{"base": 6, "enhanced": 4})

	snapshot, err := agg.AssignmentAnalytics(ctx, "plato")
	if err != nil {
		t.Fatalf("AssignmentAnalytics() error = %v", err)
	}
	if snapshot.TotalAssignments != 10 {
		t.Errorf("TotalAssignments = %d, want 10", snapshot.TotalAssignments)
	}
	if snapshot.ActualCounts["base"] != 6 || snapshot.ActualCounts["enhanced"] != 4 {
		t.Errorf("ActualCounts = %v", snapshot.ActualCounts)
	}
	if math.Abs(snapshot.ActualProportions["base"]-0.6) > 1e-9 {
		t.Errorf("ActualProportions[base] = %v, want 0.6", snapshot.ActualProportions["base"])
	}
	if snapshot.Deviation > 1e-9 {
		t.Errorf("Deviation = %v, want 0 for a perfect match", snapshot.Deviation)
	}
}

func TestAggregator_AssignmentAnalyticsSkewed(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewMemoryStore()
	agg := NewAggregator(newRegistry(t, "plato"), store, nil)

	// All users on one version: |1-0.6| and |0-0.4| average to 0.4.
	seedAssignments(t, store, "plato", map[string]int{"base": 10})

	snapshot, err := agg.AssignmentAnalytics(ctx, "plato")
	if err != nil {
		t.Fatalf("AssignmentAnalytics() error = %v", err)
	}
	if math.Abs(snapshot.Deviation-0.4) > 1e-9 {
		t.Errorf("Deviation = %v, want 0.4", snapshot.Deviation)
	}
}

func TestAggregator_AssignmentAnalyticsUnknownCharacter(t *testing.T) {
	agg := NewAggregator(newRegistry(t, "plato"), assignment.NewMemoryStore(), nil)
	if _, err := agg.AssignmentAnalytics(context.Background(), "aristotle"); !errors.Is(err, versioning.ErrNotFound) {
		t.Errorf("error = %v, want versioning.ErrNotFound", err)
	}
}

func TestAggregator_HealthCheck(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewMemoryStore()
	agg := NewAggregator(newRegistry(t, "plato", "terry-pratchett"), store, nil)

	// plato matches the configured split exactly; terry-pratchett has no
	// assignments at all.
	seedAssignments(t, store, "plato", map[string]int{"base": 6, "enhanced": 4})

	report, err := agg.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if got := report.PerCharacterScores["plato"]; math.Abs(got-100) > 1e-9 {
		t.Errorf("score[plato] = %v, want 100", got)
	}
	if got := report.PerCharacterScores["terry-pratchett"]; got != 0 {
		t.Errorf("score[terry-pratchett] = %v, want 0 with zero assignments", got)
	}
	if math.Abs(report.HealthScore-50) > 1e-9 {
		t.Errorf("HealthScore = %v, want 50", report.HealthScore)
	}
}

func TestAggregator_HealthCheckNoCharacters(t *testing.T) {
	agg := NewAggregator(versioning.NewRegistry(), assignment.NewMemoryStore(), nil)
	report, err := agg.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if report.HealthScore != 0 {
		t.Errorf("HealthScore = %v, want 0", report.HealthScore)
	}
	if len(report.PerCharacterScores) != 0 {
		t.Errorf("PerCharacterScores = %v, want empty", report.PerCharacterScores)
	}
}
