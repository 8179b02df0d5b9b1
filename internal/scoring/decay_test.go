package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyFresh(t *testing.T) {
	c := DefaultDecayConfig()
	assert.InDelta(t, 1.0, c.Recency(0), 0.001)
	assert.InDelta(t, 1.0, c.Recency(-time.Hour), 0.001, "future timestamps score as fresh")
}

func TestRecencyHalfLife(t *testing.T) {
	c := DefaultDecayConfig()
	idle := time.Duration(c.HalfLifeDays*24) * time.Hour
	assert.InDelta(t, 0.5, c.Recency(idle), 0.01)
	assert.InDelta(t, 0.25, c.Recency(2*idle), 0.01)
}

func TestRecencyMonotonic(t *testing.T) {
	c := DefaultDecayConfig()
	prev := c.Recency(0)
	for days := 1; days <= 60; days += 7 {
		cur := c.Recency(time.Duration(days) * 24 * time.Hour)
		assert.LessOrEqual(t, cur, prev, "prior must not grow with idle time")
		prev = cur
	}
}

func TestRecencyFloor(t *testing.T) {
	c := DefaultDecayConfig()
	assert.Equal(t, c.Floor, c.Recency(365*24*time.Hour))
}

func TestRecencyAt(t *testing.T) {
	c := DefaultDecayConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, c.Floor, c.RecencyAt(time.Time{}, now), "unknown activity scores the floor")
	assert.InDelta(t, 1.0, c.RecencyAt(now, now), 0.001)
	assert.Greater(t,
		c.RecencyAt(now.Add(-24*time.Hour), now),
		c.RecencyAt(now.Add(-30*24*time.Hour), now))
}

func TestRecencyZeroHalfLife(t *testing.T) {
	c := DecayConfig{HalfLifeDays: 0, Floor: 0.05}
	// Misconfigured half-life falls back to the default instead of
	// collapsing every prior to the floor.
	assert.Greater(t, c.Recency(24*time.Hour), 0.5)
}
