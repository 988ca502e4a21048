package constraint

import (
	"fmt"
	"math"
)

// Weights are the soft-scoring dimension weights. They must sum to 1.0; the
// authoritative split varies between published revisions, so it is always
// configuration, never a constant in the scorer.
type Weights struct {
	SuccessRate  float64 `json:"success_rate"`
	ResponseTime float64 `json:"response_time"`
	Coverage     float64 `json:"coverage"`
	Risk         float64 `json:"risk"`
	Redundancy   float64 `json:"redundancy"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.SuccessRate + w.ResponseTime + w.Coverage + w.Risk + w.Redundancy
}

// Config bounds the hard rules and carries the soft weights.
type Config struct {
	// MaxRisk rejects any solution whose risk dimension exceeds it.
	MaxRisk float64 `json:"max_risk"`
	// MinCapacityCoverage rejects under-capacity solutions. The optimizer
	// enforces the same floor; both checks are kept on purpose.
	MinCapacityCoverage float64 `json:"min_capacity_coverage"`
	// ReviewRiskThreshold flags solutions for human review before commit.
	ReviewRiskThreshold float64 `json:"review_risk_threshold"`

	Weights Weights `json:"weights"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxRisk == 0 {
		c.MaxRisk = 0.10
	}
	if c.MinCapacityCoverage == 0 {
		c.MinCapacityCoverage = 0.5
	}
	if c.ReviewRiskThreshold == 0 {
		c.ReviewRiskThreshold = 0.08
	}
	if c.Weights == (Weights{}) {
		c.Weights = Weights{
			SuccessRate:  0.30,
			ResponseTime: 0.30,
			Coverage:     0.20,
			Risk:         0.10,
			Redundancy:   0.10,
		}
	}
}

// Validate checks bounds and that weights sum to 1.0.
func (c Config) Validate() error {
	if c.MaxRisk <= 0 || c.MaxRisk > 1 {
		return fmt.Errorf("max_risk must be in (0,1], got %v", c.MaxRisk)
	}
	if c.MinCapacityCoverage < 0 || c.MinCapacityCoverage > 1 {
		return fmt.Errorf("min_capacity_coverage must be in [0,1], got %v", c.MinCapacityCoverage)
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("soft weights must sum to 1.0, got %v", sum)
	}
	return nil
}
