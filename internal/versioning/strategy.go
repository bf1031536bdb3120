package versioning

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Source supplies uniform reals in [0,1). *rand.Rand satisfies it; tests
// substitute a fixed sequence for deterministic draws.
type Source interface {
	Float64() float64
}

// Draw maps one uniform draw to a version id for the given config. It is a
// pure function of the config, the user id, and the next source value, so a
// fixed source yields reproducible results.
//
// Weighted strategies partition [0,1) into contiguous sub-intervals sized
// by each version's weight, in VersionIDs order. A draw landing exactly on
// an interval boundary resolves to the later interval.
func Draw(cfg *VersionConfig, userID string, src Source) (string, error) {
	switch cfg.Strategy.Kind {
	case StrategyWeighted:
		return drawWeighted(cfg, src.Float64()), nil
	case StrategyRandom:
		idx := int(src.Float64() * float64(len(cfg.VersionIDs)))
		if idx >= len(cfg.VersionIDs) {
			idx = len(cfg.VersionIDs) - 1
		}
		return cfg.VersionIDs[idx], nil
	case StrategyManual:
		v, ok := cfg.Strategy.Assignments[userID]
		if !ok {
			return "", fmt.Errorf("%w: user %q, character %q",
				ErrNoManualAssignment, userID, cfg.CharacterID)
		}
		return v, nil
	case StrategyExperiment:
		if src.Float64() < cfg.Strategy.Split {
			return cfg.Strategy.ControlID, nil
		}
		return cfg.Strategy.TestID, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy kind %q", ErrValidation, cfg.Strategy.Kind)
	}
}

func drawWeighted(cfg *VersionConfig, draw float64) string {
	cum := 0.0
	for _, v := range cfg.VersionIDs {
		cum += cfg.Strategy.Weights[v]
		if draw < cum {
			return v
		}
	}
	// Weights sum to 1.0 within tolerance; a draw past the last boundary
	// belongs to the final interval.
	return cfg.VersionIDs[len(cfg.VersionIDs)-1]
}

// lockedSource wraps a PCG generator behind a mutex so the service can draw
// from concurrent goroutines.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a concurrency-safe Source seeded from seed.
func NewSource(seed uint64) Source {
	return &lockedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}
