package slotting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRank_S1FromSpec(t *testing.T) {
	locations := []Location{
		{ID: "A-01", Kind: KindPick, Zone: ZoneAmbient, PickFrequency: 80, DistanceFromDock: 1, UtilizationPct: 0, Active: true, PickSequence: 1},
		{ID: "B-01", Kind: KindPick, Zone: ZoneAmbient, PickFrequency: 50, DistanceFromDock: 5, UtilizationPct: 0, Active: true, PickSequence: 2},
		{ID: "C-01", Kind: KindPick, Zone: ZoneAmbient, PickFrequency: 20, DistanceFromDock: 9, UtilizationPct: 0, Active: true, PickSequence: 3},
	}

	ranked := NewScorer(DefaultWeights()).Rank(locations, Context{ABCClass: ClassA, Quantity: 10})

	require.Len(t, ranked, 3)
	require.Equal(t, "A-01", ranked[0].Location.ID)
	require.Greater(t, ranked[0].Score, ranked[1].Score)
	require.Greater(t, ranked[1].Score, ranked[2].Score)
}

func TestRank_FiltersInactiveExcludedAndZoneMismatch(t *testing.T) {
	locations := []Location{
		{ID: "inactive", Active: false},
		{ID: "excluded", Active: true},
		{ID: "cold", Active: true, Zone: "FROZEN"},
		{ID: "ambient", Active: true, Zone: ZoneAmbient},
	}

	ranked := NewScorer(DefaultWeights()).Rank(locations, Context{
		RequiredZone:      "CHILLED",
		ExcludedLocations: []string{"excluded"},
	})

	require.Len(t, ranked, 1)
	require.Equal(t, "ambient", ranked[0].Location.ID)
}

func TestRank_DropsUncertifiedLocationsForHazmat(t *testing.T) {
	locations := []Location{
		{ID: "certified", Active: true, HazmatCertified: true},
		{ID: "uncertified", Active: true, HazmatCertified: false},
	}

	ranked := NewScorer(DefaultWeights()).Rank(locations, Context{Hazmat: true})

	require.Len(t, ranked, 1)
	require.Equal(t, "certified", ranked[0].Location.ID)
}

func TestRank_TiesBreakByPickSequence(t *testing.T) {
	locations := []Location{
		{ID: "second", Active: true, PickSequence: 2},
		{ID: "first", Active: true, PickSequence: 1},
	}

	ranked := NewScorer(DefaultWeights()).Rank(locations, Context{})

	require.Equal(t, "first", ranked[0].Location.ID)
	require.Equal(t, "second", ranked[1].Location.ID)
}

func TestRank_DeterministicForFixedInput(t *testing.T) {
	locations := []Location{
		{ID: "A-01", Kind: KindPick, PickFrequency: 80, DistanceFromDock: 1, Active: true},
		{ID: "B-01", Kind: KindBulk, PickFrequency: 50, DistanceFromDock: 5, Active: true},
	}
	ctx := Context{ABCClass: ClassB, Quantity: 1}

	first := NewScorer(DefaultWeights()).Rank(locations, ctx)
	second := NewScorer(DefaultWeights()).Rank(locations, ctx)

	require.Equal(t, first, second)
}
