// Package slotting implements the slotting scorer: a pure function that
// ranks candidate putaway locations under a set of weighted criteria.
package slotting

import "sort"

// ABCClass is the revenue-Pareto classification of a product (glossary).
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
)

// LocationKind distinguishes pick-friendly locations from bulk storage.
type LocationKind string

const (
	KindPick    LocationKind = "PICK"
	KindStaging LocationKind = "STAGING"
	KindBulk    LocationKind = "BULK"
)

// TemperatureZone is either a concrete storage zone or AMBIENT, which is
// universally compatible.
type TemperatureZone string

const ZoneAmbient TemperatureZone = "AMBIENT"

// Location is one candidate putaway slot.
type Location struct {
	ID                string
	Kind              LocationKind
	Zone              TemperatureZone
	PickFrequency     float64
	DistanceFromDock  float64
	UtilizationPct    float64
	Active            bool
	HazmatCertified   bool
	PickSequence      int
}

// Context is the putaway request's constraints.
type Context struct {
	ABCClass            ABCClass
	RequiredZone        TemperatureZone
	Hazmat              bool
	Quantity            int
	PreferredZones      []TemperatureZone
	ExcludedLocations   []string
}

// Weights are the per-subscore multipliers. The zero value is invalid;
// use DefaultWeights().
type Weights struct {
	ABCVelocity float64
	Proximity   float64
	Capacity    float64
	Temperature float64
	FEFO        float64
	Hazard      float64
}

// DefaultWeights returns the default subscore weighting.
func DefaultWeights() Weights {
	return Weights{
		ABCVelocity: 0.30,
		Proximity:   0.25,
		Capacity:    0.20,
		Temperature: 0.10,
		FEFO:        0.10,
		Hazard:      0.05,
	}
}

// Breakdown holds the per-subscore values (before weighting) behind a
// Suggestion's total score, for explainability.
type Breakdown struct {
	ABCVelocity float64
	Proximity   float64
	Capacity    float64
	Temperature float64
	FEFO        float64
	Hazard      float64
}

// Suggestion is one ranked candidate location.
type Suggestion struct {
	Location  Location
	Score     float64
	Breakdown Breakdown
}

// Scorer ranks locations under a fixed set of weights. Construct with
// NewScorer; the zero value is not usable.
type Scorer struct {
	weights Weights
}

// NewScorer builds a Scorer with the given weights. Pass DefaultWeights()
// for the default weighting.
func NewScorer(weights Weights) Scorer {
	return Scorer{weights: weights}
}

// Rank filters ineligible locations, scores the rest, and returns them
// sorted descending by score (ties broken by ascending pick sequence). Rank
// is deterministic for fixed inputs and weights.
func (s Scorer) Rank(locations []Location, ctx Context) []Suggestion {
	excluded := make(map[string]bool, len(ctx.ExcludedLocations))
	for _, id := range ctx.ExcludedLocations {
		excluded[id] = true
	}
	preferredZones := make(map[TemperatureZone]bool, len(ctx.PreferredZones))
	for _, z := range ctx.PreferredZones {
		preferredZones[z] = true
	}

	maxDistance := 0.0
	for _, loc := range locations {
		if loc.DistanceFromDock > maxDistance {
			maxDistance = loc.DistanceFromDock
		}
	}

	var out []Suggestion
	for _, loc := range locations {
		if !loc.Active || excluded[loc.ID] {
			continue
		}
		if !zoneCompatible(loc.Zone, ctx.RequiredZone, preferredZones) {
			continue
		}
		if ctx.Hazmat && !loc.HazmatCertified {
			continue
		}

		bd := s.score(loc, ctx, maxDistance)
		total := bd.ABCVelocity*s.weights.ABCVelocity +
			bd.Proximity*s.weights.Proximity +
			bd.Capacity*s.weights.Capacity +
			bd.Temperature*s.weights.Temperature +
			bd.FEFO*s.weights.FEFO +
			bd.Hazard*s.weights.Hazard

		out = append(out, Suggestion{Location: loc, Score: total, Breakdown: bd})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Location.PickSequence < out[j].Location.PickSequence
	})
	return out
}

func zoneCompatible(locZone, required TemperatureZone, preferred map[TemperatureZone]bool) bool {
	if locZone == ZoneAmbient {
		return true
	}
	if required != "" {
		return locZone == required
	}
	if len(preferred) == 0 {
		return true
	}
	return preferred[locZone]
}

func (s Scorer) score(loc Location, ctx Context, maxDistance float64) Breakdown {
	return Breakdown{
		ABCVelocity: abcVelocityScore(ctx.ABCClass, loc.PickFrequency),
		Proximity:   proximityScore(loc.DistanceFromDock, maxDistance),
		Capacity:    1 - loc.UtilizationPct/100,
		Temperature: temperatureScore(loc.Zone, ctx.RequiredZone),
		FEFO:        fefoFriendlinessScore(loc.Kind),
		Hazard:      hazardScore(ctx.Hazmat, loc.HazmatCertified),
	}
}

// abcVelocityScore normalizes pick frequency against a 100-picks/period
// soft ceiling: class A favors high-frequency bays, class C the inverse,
// class B is neutral regardless of frequency.
func abcVelocityScore(class ABCClass, pickFrequency float64) float64 {
	switch class {
	case ClassA:
		// Favor high-pick-frequency bays: normalize against a soft ceiling
		// so a bay at or above 100 picks/period saturates at 1.0.
		v := pickFrequency / 100
		if v > 1 {
			v = 1
		}
		if v < 0 {
			v = 0
		}
		return v
	case ClassC:
		// Favor low-frequency bays: invert the same normalization.
		v := 1 - pickFrequency/100
		if v > 1 {
			v = 1
		}
		if v < 0 {
			v = 0
		}
		return v
	default:
		return 0.5
	}
}

func proximityScore(distance, maxDistance float64) float64 {
	if maxDistance <= 0 {
		return 1
	}
	v := 1 - distance/maxDistance
	if v < 0 {
		v = 0
	}
	return v
}

func temperatureScore(locZone, required TemperatureZone) float64 {
	if required == "" {
		return 0.5
	}
	if locZone == required {
		return 1
	}
	return 0
}

func fefoFriendlinessScore(kind LocationKind) float64 {
	if kind == KindPick || kind == KindStaging {
		return 1
	}
	return 0.5
}

func hazardScore(requiresHazmat, certified bool) float64 {
	if !requiresHazmat {
		return 1
	}
	if certified {
		return 1
	}
	return 0
}
