package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fciannella/ace-versioning/internal/observability"
	"github.com/fciannella/ace-versioning/internal/versioning"
	"github.com/fciannella/ace-versioning/pkg/models"
)

// Service orchestrates registry lookup, sticky assignment, and event
// emission. The host agent runtime calls GetVersionForUser before routing
// a message and LogEvent afterwards.
//
// Availability beats analytics: when storage fails mid-assignment the
// service logs the failure and serves the character's default version
// instead of blocking the conversation.
type Service struct {
	registry *versioning.Registry
	store    Store
	events   EventStore
	src      versioning.Source
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	now func() time.Time
}

// ServiceConfig wires the service dependencies. Registry and Stores are
// required; the rest default sensibly.
type ServiceConfig struct {
	Registry *versioning.Registry
	Stores   StoreSet
	Source   versioning.Source
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// NewService creates the assignment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Stores.Assignments == nil || cfg.Stores.Events == nil {
		return nil, fmt.Errorf("assignment and event stores are required")
	}
	src := cfg.Source
	if src == nil {
		src = versioning.NewSource(uint64(time.Now().UnixNano()))
	}
	return &Service{
		registry: cfg.Registry,
		store:    cfg.Stores.Assignments,
		events:   cfg.Stores.Events,
		src:      src,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		now:      time.Now,
	}, nil
}

// Registry exposes the injected registry for the admin surface.
func (s *Service) Registry() *versioning.Registry { return s.registry }

// GetVersionForUser returns the user's sticky version of the character,
// creating the assignment on first call. First creation emits an
// assignment_created event recording the strategy used.
func (s *Service) GetVersionForUser(ctx context.Context, userID, characterID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "assignment.get_version_for_user",
		attribute.String("character_id", characterID))
	defer span.End()

	cfg, err := s.registry.Get(characterID)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}

	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.DrawDuration.WithLabelValues(characterID).Observe(s.now().Sub(start).Seconds())
		}
	}()

	existing, err := s.store.Get(ctx, userID, characterID)
	if err == nil {
		return existing.VersionID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.degrade(ctx, span, "get", userID, characterID, err)
		return cfg.DefaultVersionID, nil
	}

	versionID, strategyUsed := s.resolveDraw(cfg, userID)
	stored, created, err := s.store.Put(ctx, &models.Assignment{
		UserID:       userID,
		CharacterID:  characterID,
		VersionID:    versionID,
		StrategyUsed: strategyUsed,
		AssignedAt:   s.now().UTC(),
	})
	if err != nil {
		s.degrade(ctx, span, "put", userID, characterID, err)
		return cfg.DefaultVersionID, nil
	}

	if created {
		if s.metrics != nil {
			s.metrics.AssignmentsCreated.WithLabelValues(characterID, stored.VersionID, stored.StrategyUsed).Inc()
		}
		s.logger.Info(ctx, "assignment created",
			"user_id", userID,
			"character_id", characterID,
			"version_id", stored.VersionID,
			"strategy", stored.StrategyUsed)
		s.append(ctx, &models.AssignmentEvent{
			ID:          uuid.NewString(),
			UserID:      userID,
			CharacterID: characterID,
			VersionID:   stored.VersionID,
			EventType:   models.EventAssignmentCreated,
			Timestamp:   s.now().UTC(),
			Metadata:    map[string]any{"strategy": stored.StrategyUsed},
		})
	}
	return stored.VersionID, nil
}

// LogEvent records a usage event against the user's current version. The
// user must already be assigned; an event cannot be attributed otherwise.
func (s *Service) LogEvent(ctx context.Context, userID, characterID, eventType string, metadata map[string]any) error {
	ctx, span := s.tracer.Start(ctx, "assignment.log_event",
		attribute.String("character_id", characterID),
		attribute.String("event_type", eventType))
	defer span.End()

	if _, err := s.registry.Get(characterID); err != nil {
		observability.RecordError(span, err)
		return err
	}
	a, err := s.store.Get(ctx, userID, characterID)
	if errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("%w: cannot log %q for unassigned user %q and character %q",
			ErrNotFound, eventType, userID, characterID)
		observability.RecordError(span, err)
		return err
	}
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("resolve assignment: %w", err)
	}

	ev := &models.AssignmentEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: characterID,
		VersionID:   a.VersionID,
		EventType:   eventType,
		Timestamp:   s.now().UTC(),
		Metadata:    metadata,
	}
	if err := s.events.Append(ctx, ev); err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues("append").Inc()
		}
		observability.RecordError(span, err)
		return fmt.Errorf("append event: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EventsAppended.WithLabelValues(characterID, eventType).Inc()
	}
	return nil
}

// Reassign explicitly overrides the user's sticky assignment. This is the
// only path that changes an existing assignment, and it is logged both as
// a structured log line and as a reassigned event.
func (s *Service) Reassign(ctx context.Context, userID, characterID, newVersionID string) error {
	cfg, err := s.registry.Get(characterID)
	if err != nil {
		return err
	}
	if !cfg.HasVersion(newVersionID) {
		return fmt.Errorf("%w: version %q is not available for character %q",
			versioning.ErrValidation, newVersionID, characterID)
	}

	previous := ""
	if existing, err := s.store.Get(ctx, userID, characterID); err == nil {
		previous = existing.VersionID
	}

	err = s.store.Overwrite(ctx, &models.Assignment{
		UserID:       userID,
		CharacterID:  characterID,
		VersionID:    newVersionID,
		StrategyUsed: "reassignment",
		AssignedAt:   s.now().UTC(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues("overwrite").Inc()
		}
		return fmt.Errorf("reassign: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Reassignments.WithLabelValues(characterID, newVersionID).Inc()
	}
	s.logger.Info(ctx, "assignment overridden",
		"user_id", userID,
		"character_id", characterID,
		"previous_version", previous,
		"version_id", newVersionID)
	s.append(ctx, &models.AssignmentEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: characterID,
		VersionID:   newVersionID,
		EventType:   models.EventReassigned,
		Timestamp:   s.now().UTC(),
		Metadata:    map[string]any{"previous_version": previous},
	})
	return nil
}

// DistributionReport summarizes how draws or assignments spread across a
// character's versions.
type DistributionReport struct {
	CharacterID         string             `json:"character_id"`
	Samples             int                `json:"samples"`
	Counts              map[string]int     `json:"counts"`
	ActualProportions   map[string]float64 `json:"actual_proportions"`
	ExpectedProportions map[string]float64 `json:"expected_proportions"`
}

// TestDistribution performs n independent strategy draws without touching
// the sticky store or the event log. It exists purely to verify a strategy
// configuration and never affects live user data.
func (s *Service) TestDistribution(ctx context.Context, characterID string, n int) (*DistributionReport, error) {
	cfg, err := s.registry.Get(characterID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive, got %d", versioning.ErrValidation, n)
	}

	counts := make(map[string]int, len(cfg.VersionIDs))
	for _, v := range cfg.VersionIDs {
		counts[v] = 0
	}
	for i := 0; i < n; i++ {
		versionID, _ := s.resolveDraw(cfg, fmt.Sprintf("draw-%d", i))
		counts[versionID]++
	}
	return buildReport(cfg, counts, n), nil
}

// SimulateUserAssignments runs n full sticky get-or-create cycles against
// synthetic user ids, exercising the same store path live traffic uses.
// The synthetic assignments are persisted (prefixed "sim-"), so run this
// against a scratch store when pollution matters.
func (s *Service) SimulateUserAssignments(ctx context.Context, characterID string, n int) (*DistributionReport, error) {
	cfg, err := s.registry.Get(characterID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: user count must be positive, got %d", versioning.ErrValidation, n)
	}

	counts := make(map[string]int, len(cfg.VersionIDs))
	for _, v := range cfg.VersionIDs {
		counts[v] = 0
	}
	for i := 0; i < n; i++ {
		userID := "sim-" + uuid.NewString()
		versionID, strategyUsed := s.resolveDraw(cfg, userID)
		stored, _, err := s.store.Put(ctx, &models.Assignment{
			UserID:       userID,
			CharacterID:  characterID,
			VersionID:    versionID,
			StrategyUsed: strategyUsed,
			AssignedAt:   s.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("simulate assignment: %w", err)
		}
		counts[stored.VersionID]++
	}
	return buildReport(cfg, counts, n), nil
}

// PruneEvents drops events older than the cutoff from the log.
func (s *Service) PruneEvents(ctx context.Context, olderThan time.Time) (int, error) {
	return s.events.Prune(ctx, olderThan)
}

// resolveDraw runs the strategy and applies the default-version fallback
// for users without a manual entry.
func (s *Service) resolveDraw(cfg *versioning.VersionConfig, userID string) (string, string) {
	versionID, err := versioning.Draw(cfg, userID, s.src)
	if err != nil {
		// Manual strategy with no entry for this user, or a config that
		// slipped past validation; either way the default version keeps
		// the conversation going.
		return cfg.DefaultVersionID, string(cfg.Strategy.Kind)
	}
	return versionID, string(cfg.Strategy.Kind)
}

func (s *Service) degrade(ctx context.Context, span trace.Span, op, userID, characterID string, err error) {
	observability.RecordError(span, err)
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
	s.logger.Error(ctx, "assignment store failure, serving default version",
		"operation", op,
		"user_id", userID,
		"character_id", characterID,
		"error", err)
}

func (s *Service) append(ctx context.Context, ev *models.AssignmentEvent) {
	if err := s.events.Append(ctx, ev); err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues("append").Inc()
		}
		s.logger.Warn(ctx, "event append failed",
			"event_type", ev.EventType,
			"character_id", ev.CharacterID,
			"error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsAppended.WithLabelValues(ev.CharacterID, ev.EventType).Inc()
	}
}

func buildReport(cfg *versioning.VersionConfig, counts map[string]int, n int) *DistributionReport {
	actual := make(map[string]float64, len(counts))
	for v, c := range counts {
		actual[v] = float64(c) / float64(n)
	}
	return &DistributionReport{
		CharacterID:         cfg.CharacterID,
		Samples:             n,
		Counts:              counts,
		ActualProportions:   actual,
		ExpectedProportions: cfg.ExpectedProportions(),
	}
}
