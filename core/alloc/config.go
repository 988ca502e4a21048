package alloc

import (
	"fmt"
	"time"
)

// Config tunes both optimizer modes. All thresholds are configuration, never
// literals in the algorithm.
type Config struct {
	// CoverageThreshold is the fraction of the estimated affected count the
	// greedy mode must reach in rescue capacity before it may stop.
	CoverageThreshold float64 `json:"coverage_threshold"`

	// MinCoverageRate is the hard feasibility floor enforced inside the
	// multi-objective optimizer. The constraint filter enforces it again.
	MinCoverageRate float64 `json:"min_coverage_rate"`

	// MultiObjectiveThreshold is the candidate-set size above which the
	// pipeline switches to multi-objective mode.
	MultiObjectiveThreshold int `json:"multi_objective_threshold"`

	Population  int `json:"population"`
	Generations int `json:"generations"`

	// TimeoutSeconds bounds a multi-objective run; LargeTimeoutSeconds
	// applies when the candidate set exceeds LargeSetSize.
	TimeoutSeconds      int `json:"timeout_seconds"`
	LargeTimeoutSeconds int `json:"large_timeout_seconds"`
	LargeSetSize        int `json:"large_set_size"`

	CrossoverRate float64 `json:"crossover_rate"`
	MutationRate  float64 `json:"mutation_rate"`

	// Seed fixes the random source for reproducible runs; zero seeds from
	// the clock.
	Seed int64 `json:"seed"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.CoverageThreshold == 0 {
		c.CoverageThreshold = 0.8
	}
	if c.MinCoverageRate == 0 {
		c.MinCoverageRate = 0.5
	}
	if c.MultiObjectiveThreshold == 0 {
		c.MultiObjectiveThreshold = 10
	}
	if c.Population == 0 {
		c.Population = 40
	}
	if c.Generations == 0 {
		c.Generations = 60
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
	if c.LargeTimeoutSeconds == 0 {
		c.LargeTimeoutSeconds = 60
	}
	if c.LargeSetSize == 0 {
		c.LargeSetSize = 100
	}
	if c.CrossoverRate == 0 {
		c.CrossoverRate = 0.9
	}
	if c.MutationRate == 0 {
		c.MutationRate = 0.05
	}
}

// Validate checks mandatory bounds.
func (c Config) Validate() error {
	if c.CoverageThreshold <= 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("coverage_threshold must be in (0,1], got %v", c.CoverageThreshold)
	}
	if c.MinCoverageRate < 0 || c.MinCoverageRate > 1 {
		return fmt.Errorf("min_coverage_rate must be in [0,1], got %v", c.MinCoverageRate)
	}
	if c.Population < 2 {
		return fmt.Errorf("population must be at least 2, got %d", c.Population)
	}
	if c.Generations < 1 {
		return fmt.Errorf("generations must be at least 1, got %d", c.Generations)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 || c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("crossover and mutation rates must be in [0,1]")
	}
	return nil
}

// Timeout returns the wall-clock budget for a candidate set of the given size.
func (c Config) Timeout(candidates int) time.Duration {
	if candidates > c.LargeSetSize {
		return time.Duration(c.LargeTimeoutSeconds) * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
