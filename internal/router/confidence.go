package router

// ConfidenceWeights tunes how much each signal contributes to a route
// candidate's confidence. Weights sum to 1.0 so a candidate with every
// signal fully present scores exactly 1.0.
type ConfidenceWeights struct {
	Intent   float64 `json:"intent"`
	Resource float64 `json:"resource"`
	Filter   float64 `json:"filter"`
	Recency  float64 `json:"recency"`
}

// DefaultConfidenceWeights returns the standard weighting. Intent dominates;
// resource targeting is next; extracted filters and recency refine.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Intent:   0.4,
		Resource: 0.3,
		Filter:   0.2,
		Recency:  0.1,
	}
}

// Calculator computes route candidate confidence from signal components.
type Calculator struct {
	weights ConfidenceWeights
}

// NewCalculator creates a confidence calculator. A zero-valued weights
// argument selects the defaults.
func NewCalculator(weights ConfidenceWeights) *Calculator {
	if weights == (ConfidenceWeights{}) {
		weights = DefaultConfidenceWeights()
	}
	return &Calculator{weights: weights}
}

// Signals are the raw per-candidate inputs, each in [0,1].
//
//   - IntentStrength: how decisively the query's phrasing selects this
//     strategy (pattern agreement from the classifier).
//   - ResourceMatch: how well the query names a concrete table or page
//     (term containment against resource names).
//   - FilterMatch: fraction of the query's constraint-like terms that were
//     bound to concrete filters or aggregation parameters.
//   - Recency: whether the matched resource was recently active in the
//     workspace.
type Signals struct {
	IntentStrength float64
	ResourceMatch  float64
	FilterMatch    float64
	Recency        float64
}

// Calculate computes the final confidence for a candidate.
func (c *Calculator) Calculate(s Signals) float64 {
	return c.CalculateComponents(s).Final
}

// CalculateComponents returns the weighted breakdown of a confidence score.
// The breakdown is carried on the Decision for debug output.
func (c *Calculator) CalculateComponents(s Signals) Components {
	comps := Components{
		Intent:   clamp01(s.IntentStrength) * c.weights.Intent,
		Resource: clamp01(s.ResourceMatch) * c.weights.Resource,
		Filter:   clamp01(s.FilterMatch) * c.weights.Filter,
		Recency:  clamp01(s.Recency) * c.weights.Recency,
	}
	comps.Final = clamp01(comps.Intent + comps.Resource + comps.Filter + comps.Recency)
	return comps
}

// Components is the weighted contribution of each signal to the final score.
type Components struct {
	Intent   float64 `json:"intent"`
	Resource float64 `json:"resource"`
	Filter   float64 `json:"filter"`
	Recency  float64 `json:"recency"`
	Final    float64 `json:"final"`
}

// Map renders the breakdown for debug payloads.
func (c Components) Map() map[string]float64 {
	return map[string]float64{
		"intent":   c.Intent,
		"resource": c.Resource,
		"filter":   c.Filter,
		"recency":  c.Recency,
		"final":    c.Final,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
