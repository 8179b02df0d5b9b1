// Package scoring derives recency priors for workspace resources. The
// router prefers recently touched tables and pages when several match a
// query; the prior decays smoothly with idle time instead of cutting off
// at a window edge.
package scoring

import (
	"math"
	"time"
)

// DecayConfig holds the parameters of the recency prior.
type DecayConfig struct {
	// HalfLifeDays is the idle time after which the prior halves.
	HalfLifeDays float64 `json:"half_life_days"`
	// Floor is the minimum prior for any resource.
	Floor float64 `json:"floor"`
}

// DefaultDecayConfig returns the decay parameters used by the stores.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		HalfLifeDays: 14,
		Floor:        0.05,
	}
}

// Recency maps time since last activity to a prior in [Floor, 1].
func (c DecayConfig) Recency(since time.Duration) float64 {
	if since < 0 {
		since = 0
	}
	halfLife := c.HalfLifeDays
	if halfLife <= 0 {
		halfLife = DefaultDecayConfig().HalfLifeDays
	}

	days := since.Hours() / 24
	prior := math.Exp(-math.Ln2 * days / halfLife)
	if prior < c.Floor {
		return c.Floor
	}
	return prior
}

// RecencyAt scores a last-activity timestamp against now. A zero timestamp
// means the resource has never been touched and scores the floor, so silent
// resources do not outrank active ones.
func (c DecayConfig) RecencyAt(lastActivity, now time.Time) float64 {
	if lastActivity.IsZero() {
		return c.Floor
	}
	return c.Recency(now.Sub(lastActivity))
}
