// Package versioning holds the version configs for base characters and the
// pure draw logic that maps a user to a character version.
package versioning

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// WeightTolerance is how far a weighted strategy's weights may drift from
// summing to exactly 1.0 before registration is rejected.
const WeightTolerance = 1e-6

// StrategyKind discriminates the assignment strategy variants.
type StrategyKind string

const (
	// StrategyWeighted assigns versions with configured probabilities.
	StrategyWeighted StrategyKind = "weighted"

	// StrategyRandom assigns versions uniformly.
	StrategyRandom StrategyKind = "random"

	// StrategyManual assigns versions from an explicit user table.
	StrategyManual StrategyKind = "manual"

	// StrategyExperiment splits users between a control and a test version.
	StrategyExperiment StrategyKind = "experiment"
)

// StrategyConfig is a tagged variant over the strategy kinds. Only the
// fields matching Kind are consulted.
type StrategyConfig struct {
	Kind StrategyKind `yaml:"kind" json:"kind"`

	// Weights maps version id to probability (weighted only). Keys must
	// match the character's version ids exactly and sum to 1.0 within
	// WeightTolerance.
	Weights map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`

	// Assignments maps user id to version id (manual only).
	Assignments map[string]string `yaml:"assignments,omitempty" json:"assignments,omitempty"`

	// ControlID, TestID, and Split configure the experiment strategy.
	// A draw below Split gets the control version, otherwise the test one.
	ControlID string  `yaml:"control,omitempty" json:"control,omitempty"`
	TestID    string  `yaml:"test,omitempty" json:"test,omitempty"`
	Split     float64 `yaml:"split,omitempty" json:"split,omitempty"`
}

// VersionConfig describes the available versions of one base character and
// how new users are routed between them.
type VersionConfig struct {
	// CharacterID is the base character family, e.g. "plato".
	CharacterID string `yaml:"id" json:"character_id"`

	// VersionIDs is the ordered, non-empty set of available versions.
	// Order matters: the weighted strategy partitions [0,1) in this order.
	VersionIDs []string `yaml:"versions" json:"version_ids"`

	// DefaultVersionID is served when no strategy decision applies. Must
	// be a member of VersionIDs.
	DefaultVersionID string `yaml:"default" json:"default_version_id"`

	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
}

// HasVersion reports whether id is one of the available version ids.
func (c *VersionConfig) HasVersion(id string) bool {
	for _, v := range c.VersionIDs {
		if v == id {
			return true
		}
	}
	return false
}

// ExpectedProportions returns the distribution the strategy is configured
// to produce across new users. Manual strategies have no probabilistic
// expectation; all mass is placed on the default version since unlisted
// users receive it.
func (c *VersionConfig) ExpectedProportions() map[string]float64 {
	out := make(map[string]float64, len(c.VersionIDs))
	for _, v := range c.VersionIDs {
		out[v] = 0
	}
	switch c.Strategy.Kind {
	case StrategyWeighted:
		for v, w := range c.Strategy.Weights {
			out[v] = w
		}
	case StrategyRandom:
		share := 1.0 / float64(len(c.VersionIDs))
		for _, v := range c.VersionIDs {
			out[v] = share
		}
	case StrategyManual:
		out[c.DefaultVersionID] = 1.0
	case StrategyExperiment:
		out[c.Strategy.ControlID] = c.Strategy.Split
		out[c.Strategy.TestID] += 1.0 - c.Strategy.Split
	}
	return out
}

// Validate checks the config invariants. All misconfiguration is caught
// here, at registration time, before any user-facing traffic.
func (c *VersionConfig) Validate() error {
	if strings.TrimSpace(c.CharacterID) == "" {
		return fmt.Errorf("%w: character id is required", ErrValidation)
	}
	if len(c.VersionIDs) == 0 {
		return fmt.Errorf("%w: character %q has no versions", ErrValidation, c.CharacterID)
	}
	seen := make(map[string]bool, len(c.VersionIDs))
	for _, v := range c.VersionIDs {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: character %q has an empty version id", ErrValidation, c.CharacterID)
		}
		if seen[v] {
			return fmt.Errorf("%w: character %q lists version %q twice", ErrValidation, c.CharacterID, v)
		}
		seen[v] = true
	}
	if !c.HasVersion(c.DefaultVersionID) {
		return fmt.Errorf("%w: character %q default version %q is not in the available set",
			ErrValidation, c.CharacterID, c.DefaultVersionID)
	}
	return c.validateStrategy()
}

func (c *VersionConfig) validateStrategy() error {
	s := c.Strategy
	switch s.Kind {
	case StrategyWeighted:
		if len(s.Weights) != len(c.VersionIDs) {
			return fmt.Errorf("%w: character %q weight keys %v do not match versions %v",
				ErrValidation, c.CharacterID, sortedKeys(s.Weights), c.VersionIDs)
		}
		sum := 0.0
		for _, v := range c.VersionIDs {
			w, ok := s.Weights[v]
			if !ok {
				return fmt.Errorf("%w: character %q has no weight for version %q",
					ErrValidation, c.CharacterID, v)
			}
			if w < 0 {
				return fmt.Errorf("%w: character %q version %q has negative weight %v",
					ErrValidation, c.CharacterID, v, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > WeightTolerance {
			return fmt.Errorf("%w: character %q weights sum to %v, want 1.0",
				ErrValidation, c.CharacterID, sum)
		}
	case StrategyRandom:
		// No parameters.
	case StrategyManual:
		for user, v := range s.Assignments {
			if !c.HasVersion(v) {
				return fmt.Errorf("%w: character %q manual assignment for %q targets unknown version %q",
					ErrValidation, c.CharacterID, user, v)
			}
		}
	case StrategyExperiment:
		if !c.HasVersion(s.ControlID) {
			return fmt.Errorf("%w: character %q experiment control %q is not an available version",
				ErrValidation, c.CharacterID, s.ControlID)
		}
		if !c.HasVersion(s.TestID) {
			return fmt.Errorf("%w: character %q experiment test %q is not an available version",
				ErrValidation, c.CharacterID, s.TestID)
		}
		if s.Split < 0 || s.Split > 1 {
			return fmt.Errorf("%w: character %q experiment split %v is outside [0,1]",
				ErrValidation, c.CharacterID, s.Split)
		}
	default:
		return fmt.Errorf("%w: character %q has unknown strategy kind %q",
			ErrValidation, c.CharacterID, s.Kind)
	}
	return nil
}

// Clone returns a deep copy so registry readers cannot mutate shared state.
func (c *VersionConfig) Clone() *VersionConfig {
	if c == nil {
		return nil
	}
	dup := *c
	dup.VersionIDs = append([]string(nil), c.VersionIDs...)
	if c.Strategy.Weights != nil {
		dup.Strategy.Weights = make(map[string]float64, len(c.Strategy.Weights))
		for k, v := range c.Strategy.Weights {
			dup.Strategy.Weights[k] = v
		}
	}
	if c.Strategy.Assignments != nil {
		dup.Strategy.Assignments = make(map[string]string, len(c.Strategy.Assignments))
		for k, v := range c.Strategy.Assignments {
			dup.Strategy.Assignments[k] = v
		}
	}
	return &dup
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
