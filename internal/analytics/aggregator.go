// Package analytics computes distribution reports and health scores over
// the sticky assignment records.
package analytics

import (
	"context"
	"fmt"
	"math"

	"github.com/fciannella/ace-versioning/internal/assignment"
	"github.com/fciannella/ace-versioning/internal/observability"
	"github.com/fciannella/ace-versioning/internal/versioning"
)

// Aggregator derives point-in-time analytics snapshots from the assignment
// store and the registry's expected proportions. Snapshots are recomputed
// on demand and never persisted; concurrent assignment writes make them
// eventually-consistent estimates, not transactional reads.
type Aggregator struct {
	registry *versioning.Registry
	store    assignment.Store
	metrics  *observability.Metrics
}

// NewAggregator creates an analytics aggregator.
func NewAggregator(registry *versioning.Registry, store assignment.Store, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{registry: registry, store: store, metrics: metrics}
}

// Snapshot reports expected-vs-actual distribution for one character.
type Snapshot struct {
	CharacterID         string             `json:"character_id"`
	TotalAssignments    int                `json:"total_assignments"`
	ActualCounts        map[string]int     `json:"actual_counts"`
	ActualProportions   map[string]float64 `json:"actual_proportions"`
	ExpectedProportions map[string]float64 `json:"expected_proportions"`

	// Deviation is the mean absolute deviation between actual and expected
	// proportions across the character's versions.
	Deviation float64 `json:"deviation"`
}

// HealthReport aggregates per-character distribution health.
type HealthReport struct {
	// PerCharacterScores maps character id to a 0-100 score; 100 means the
	// actual distribution matches the configured one exactly.
	PerCharacterScores map[string]float64 `json:"per_character_scores"`

	// HealthScore is the mean across all registered characters.
	HealthScore float64 `json:"health_score"`
}

// AssignmentAnalytics scans all assignments for the character and compares
// the observed distribution with the configured expectation. A character
// with no assignments yields zero counts and zero deviation rather than an
// error.
func (a *Aggregator) AssignmentAnalytics(ctx context.Context, characterID string) (*Snapshot, error) {
	cfg, err := a.registry.Get(characterID)
	if err != nil {
		return nil, err
	}
	assignments, err := a.store.ListByCharacter(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	counts := make(map[string]int, len(cfg.VersionIDs))
	for _, v := range cfg.VersionIDs {
		counts[v] = 0
	}
	for _, rec := range assignments {
		counts[rec.VersionID]++
	}

	total := len(assignments)
	actual := make(map[string]float64, len(counts))
	for v, c := range counts {
		if total > 0 {
			actual[v] = float64(c) / float64(total)
		} else {
			actual[v] = 0
		}
	}

	expected := cfg.ExpectedProportions()
	snapshot := &Snapshot{
		CharacterID:         characterID,
		TotalAssignments:    total,
		ActualCounts:        counts,
		ActualProportions:   actual,
		ExpectedProportions: expected,
	}
	if total > 0 {
		snapshot.Deviation = meanAbsoluteDeviation(actual, expected)
	}
	return snapshot, nil
}

// HealthCheck scores every registered character. A character with zero
// assignments scores 0; it has produced no evidence its distribution is
// healthy. The per-character scores are also exported as gauges.
func (a *Aggregator) HealthCheck(ctx context.Context) (*HealthReport, error) {
	ids := a.registry.CharacterIDs()
	report := &HealthReport{PerCharacterScores: make(map[string]float64, len(ids))}
	if len(ids) == 0 {
		return report, nil
	}

	sum := 0.0
	for _, id := range ids {
		snapshot, err := a.AssignmentAnalytics(ctx, id)
		if err != nil {
			return nil, err
		}
		score := 0.0
		if snapshot.TotalAssignments > 0 {
			score = clamp(100*(1-snapshot.Deviation), 0, 100)
		}
		report.PerCharacterScores[id] = score
		sum += score
		if a.metrics != nil {
			a.metrics.HealthScore.WithLabelValues(id).Set(score)
		}
	}
	report.HealthScore = sum / float64(len(ids))
	return report, nil
}

func meanAbsoluteDeviation(actual, expected map[string]float64) float64 {
	keys := make(map[string]bool, len(actual)+len(expected))
	for k := range actual {
		keys[k] = true
	}
	for k := range expected {
		keys[k] = true
	}
	if len(keys) == 0 {
		return 0
	}
	sum := 0.0
	for k := range keys {
		sum += math.Abs(actual[k] - expected[k])
	}
	return sum / float64(len(keys))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
