package classify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyABC_ParetoThresholds(t *testing.T) {
	samples := []RevenueSample{
		{ProductID: "P1", Revenue: 800},
		{ProductID: "P2", Revenue: 150},
		{ProductID: "P3", Revenue: 50},
	}
	results := ClassifyABC(samples)

	byID := make(map[string]ABCResult, len(results))
	for _, r := range results {
		byID[r.ProductID] = r
	}

	require.Equal(t, ClassA, byID["P1"].Class)
	require.Equal(t, ClassB, byID["P2"].Class)
	require.Equal(t, ClassC, byID["P3"].Class)
	require.InDelta(t, 1.0, byID["P3"].CumulativePct, 1e-9)
}

func TestClassifyABC_ZeroRevenueIsAlwaysC(t *testing.T) {
	samples := []RevenueSample{{ProductID: "P1", Revenue: 0}, {ProductID: "P2", Revenue: 100}}
	results := ClassifyABC(samples)
	for _, r := range results {
		if r.ProductID == "P1" {
			require.Equal(t, ClassC, r.Class)
		}
	}
}

func TestClassifyABC_AllZeroRevenueDoesNotDivideByZero(t *testing.T) {
	samples := []RevenueSample{{ProductID: "P1", Revenue: 0}, {ProductID: "P2", Revenue: 0}}
	results := ClassifyABC(samples)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Equal(t, ClassC, r.Class)
	}
}

func TestClassifyXYZ_StableDemandIsX(t *testing.T) {
	result := ClassifyXYZ("P1", []float64{100, 101, 99, 100, 100})
	require.Equal(t, ClassX, result.Class)
}

func TestClassifyXYZ_ErraticDemandIsZ(t *testing.T) {
	result := ClassifyXYZ("P1", []float64{10, 200, 5, 300, 1})
	require.Equal(t, ClassZ, result.Class)
}

func TestClassifyXYZ_InsufficientHistoryIsZ(t *testing.T) {
	require.Equal(t, ClassZ, ClassifyXYZ("P1", []float64{10}).Class)
	require.Equal(t, ClassZ, ClassifyXYZ("P1", nil).Class)
}

func TestSafetyStock_MatchesFormula(t *testing.T) {
	in := SafetyStockInput{Z: 1.65, AvgLeadTimeDays: 7, DemandStdDev: 4, AvgDailyDemand: 20, LeadTimeStdDev: 1}
	got := SafetyStock(in)
	want := 1.65 * math.Sqrt(7*4*4+20*20*1*1)
	require.InDelta(t, want, got, 1e-9)
}

func TestSafetyStock_ZeroVariabilityIsZero(t *testing.T) {
	in := SafetyStockInput{Z: 1.65, AvgLeadTimeDays: 7, DemandStdDev: 0, AvgDailyDemand: 20, LeadTimeStdDev: 0}
	require.Equal(t, 0.0, SafetyStock(in))
}

func TestServiceLevelZ_KnownLevels(t *testing.T) {
	require.InDelta(t, 1.65, ServiceLevelZ(0.95), 1e-9)
	require.InDelta(t, 2.33, ServiceLevelZ(0.99), 1e-9)
}
