// Package classify implements the pure demand-classification formulas the
// scheduled agents rely on: revenue-Pareto ABC classing, coefficient-of-
// variation XYZ classing, and the safety-stock z-score formula. Like fefo
// and slotting, nothing here touches the store or the broker — callers
// hand in a snapshot and get a deterministic result.
package classify

import (
	"math"
	"sort"
)

// ABCClass is the revenue-Pareto classification: A covers the top slice of
// cumulative revenue, B the next, C the remainder.
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
)

// XYZClass is the demand-variability classification by coefficient of
// variation (stddev / mean of historical demand).
type XYZClass string

const (
	ClassX XYZClass = "X"
	ClassY XYZClass = "Y"
	ClassZ XYZClass = "Z"
)

// RevenueSample is one product's trailing revenue, the ABC input.
type RevenueSample struct {
	ProductID string
	Revenue   float64
}

// ABCResult pairs a product with its class and the cumulative revenue
// percentage that produced it, for explainability.
type ABCResult struct {
	ProductID        string
	Class            ABCClass
	CumulativePct    float64
	RevenueShare     float64
}

// ClassifyABC ranks samples by revenue descending and assigns classes by
// cumulative share of total revenue: A up to 80%, B up to 95%, C beyond.
// Products with zero or negative revenue are always class C. Total revenue
// of zero yields class C for every sample (nothing to rank).
func ClassifyABC(samples []RevenueSample) []ABCResult {
	ordered := make([]RevenueSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Revenue > ordered[j].Revenue })

	var total float64
	for _, s := range ordered {
		if s.Revenue > 0 {
			total += s.Revenue
		}
	}

	out := make([]ABCResult, 0, len(ordered))
	var cumulative float64
	for _, s := range ordered {
		if total <= 0 || s.Revenue <= 0 {
			out = append(out, ABCResult{ProductID: s.ProductID, Class: ClassC})
			continue
		}
		cumulative += s.Revenue
		pct := cumulative / total
		class := ClassC
		switch {
		case pct <= 0.80:
			class = ClassA
		case pct <= 0.95:
			class = ClassB
		}
		out = append(out, ABCResult{
			ProductID:     s.ProductID,
			Class:         class,
			CumulativePct: pct,
			RevenueShare:  s.Revenue / total,
		})
	}
	return out
}

// XYZResult pairs a product with its variability class and the coefficient
// of variation that produced it.
type XYZResult struct {
	ProductID string
	Class     XYZClass
	CV        float64
}

// ClassifyXYZ computes the coefficient of variation of each product's
// demand history and classes it: CV < 0.5 is X (stable), < 1.0 is Y
// (variable), otherwise Z (erratic). A product with fewer than two samples
// or zero mean demand is class Z (nothing stable to measure).
func ClassifyXYZ(productID string, demandHistory []float64) XYZResult {
	if len(demandHistory) < 2 {
		return XYZResult{ProductID: productID, Class: ClassZ}
	}

	mean := meanOf(demandHistory)
	if mean == 0 {
		return XYZResult{ProductID: productID, Class: ClassZ}
	}

	cv := stddevOf(demandHistory, mean) / mean
	class := ClassZ
	switch {
	case cv < 0.5:
		class = ClassX
	case cv < 1.0:
		class = ClassY
	}
	return XYZResult{ProductID: productID, Class: class, CV: cv}
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// ServiceLevelZ maps a handful of common target service levels to their
// standard-normal z-score. Callers needing a level not listed here should
// supply the z-score directly to SafetyStock.
func ServiceLevelZ(targetServiceLevel float64) float64 {
	switch {
	case targetServiceLevel >= 0.999:
		return 3.09
	case targetServiceLevel >= 0.99:
		return 2.33
	case targetServiceLevel >= 0.98:
		return 2.05
	case targetServiceLevel >= 0.975:
		return 1.96
	case targetServiceLevel >= 0.95:
		return 1.65
	case targetServiceLevel >= 0.90:
		return 1.28
	default:
		return 1.0
	}
}

// SafetyStockInput is the demand/lead-time statistics SafetyStock consumes.
type SafetyStockInput struct {
	Z                float64 // service-level z-score, see ServiceLevelZ
	AvgLeadTimeDays  float64
	DemandStdDev     float64 // σD: stddev of daily demand
	AvgDailyDemand   float64 // D: mean daily demand
	LeadTimeStdDev   float64 // σLT: stddev of lead time in days
}

// SafetyStock implements the glossary's combined-variability formula:
// Z * sqrt(LT*σD² + D²*σLT²). This accounts for variability in both demand
// and supplier lead time, not just demand alone.
func SafetyStock(in SafetyStockInput) float64 {
	variance := in.AvgLeadTimeDays*in.DemandStdDev*in.DemandStdDev +
		in.AvgDailyDemand*in.AvgDailyDemand*in.LeadTimeStdDev*in.LeadTimeStdDev
	if variance < 0 {
		variance = 0
	}
	return in.Z * math.Sqrt(variance)
}
