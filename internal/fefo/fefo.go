// Package fefo implements the FEFO allocator: a pure function that picks
// lots in earliest-expiry order to cover a demand, honoring exclusion and
// minimum-shelf-life filters and a fixed tiebreak order. Nothing here
// touches the store or the broker — callers hand it a snapshot of candidate
// sources and get back a deterministic allocation plan.
package fefo

import (
	"sort"
	"time"
)

// LotStatus mirrors the lot batch status machine.
type LotStatus string

const (
	LotAvailable  LotStatus = "AVAILABLE"
	LotReleased   LotStatus = "RELEASED"
	LotQuarantine LotStatus = "QUARANTINE"
	LotHold       LotStatus = "HOLD"
	LotExpired    LotStatus = "EXPIRED"
)

// Lot describes the optional lot attached to a source. A nil *Lot models a
// non-lot-tracked source.
type Lot struct {
	ID             string
	Status         LotStatus
	ExpirationDate *time.Time
	ReceivedDate   time.Time
}

func (l *Lot) pickable(minDaysToExpiration int, now time.Time) (ok bool, reason string) {
	if l.Status != LotAvailable && l.Status != LotReleased {
		return false, "LOT_NOT_PICKABLE_STATUS"
	}
	if l.ExpirationDate != nil {
		days := int(l.ExpirationDate.Sub(now).Hours() / 24)
		if days < minDaysToExpiration {
			return false, "LOT_WITHIN_EXPIRATION_WINDOW"
		}
	}
	return true, ""
}

// Source is one candidate stock level, optionally lot-tracked, eligible to
// cover a demand.
type Source struct {
	StockLevelID string
	Product      string
	Variant      string
	Warehouse    string
	Location     string
	PickSequence int
	Available    int
	Lot          *Lot
}

// Request describes a demand to allocate against a set of Sources.
type Request struct {
	Product             string
	Variant             string
	Warehouse           string
	Quantity            int
	PreferredLocations  []string
	ExcludedLots        []string
	MinDaysToExpiration int
}

// Line is one allocation against a single source.
type Line struct {
	StockLevelID string
	LotID        string
	Location     string
	Quantity     int
}

// Skip records why a candidate source was passed over.
type Skip struct {
	StockLevelID string
	LotID        string
	Reason       string
}

// Result is the outcome of Allocate: lines summing to at most
// Request.Quantity, the skipped sources and why, and the shortfall (0 when
// fully covered).
type Result struct {
	Lines           []Line
	Skipped         []Skip
	FullyAllocated  bool
	ShortfallQty    int
}

// Allocate is total: it never errors. A request that cannot be fully
// covered comes back with partial Lines and a non-zero ShortfallQty.
func Allocate(req Request, sources []Source, now time.Time) Result {
	candidates := filterMatching(req, sources)
	ordered := orderFEFO(req, candidates)

	excluded := make(map[string]bool, len(req.ExcludedLots))
	for _, id := range req.ExcludedLots {
		excluded[id] = true
	}

	remaining := req.Quantity
	var lines []Line
	var skipped []Skip

	for _, src := range ordered {
		lotID := ""
		if src.Lot != nil {
			lotID = src.Lot.ID
		}

		if src.Available <= 0 {
			skipped = append(skipped, Skip{StockLevelID: src.StockLevelID, LotID: lotID, Reason: "NO_AVAILABLE_STOCK"})
			continue
		}
		if src.Lot != nil {
			if excluded[src.Lot.ID] {
				skipped = append(skipped, Skip{StockLevelID: src.StockLevelID, LotID: lotID, Reason: "LOT_EXCLUDED"})
				continue
			}
			if ok, reason := src.Lot.pickable(req.MinDaysToExpiration, now); !ok {
				skipped = append(skipped, Skip{StockLevelID: src.StockLevelID, LotID: lotID, Reason: reason})
				continue
			}
		}

		if remaining <= 0 {
			continue
		}
		take := remaining
		if take > src.Available {
			take = src.Available
		}
		lines = append(lines, Line{
			StockLevelID: src.StockLevelID,
			LotID:        lotID,
			Location:     src.Location,
			Quantity:     take,
		})
		remaining -= take
	}

	return Result{
		Lines:          lines,
		Skipped:        skipped,
		FullyAllocated: remaining == 0,
		ShortfallQty:   remaining,
	}
}

func filterMatching(req Request, sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Product != req.Product || s.Warehouse != req.Warehouse {
			continue
		}
		if req.Variant != "" && s.Variant != req.Variant {
			continue
		}
		out = append(out, s)
	}
	return out
}

func orderFEFO(req Request, sources []Source) []Source {
	preferred := make(map[string]bool, len(req.PreferredLocations))
	for _, loc := range req.PreferredLocations {
		preferred[loc] = true
	}

	ordered := make([]Source, len(sources))
	copy(ordered, sources)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]

		ap, bp := preferred[a.Location], preferred[b.Location]
		if ap != bp {
			return ap
		}

		if cmp, ok := compareExpiry(a.Lot, b.Lot); ok {
			return cmp
		}

		return a.PickSequence < b.PickSequence
	})
	return ordered
}

// compareExpiry implements the FEFO ordering rule: both expiring lots
// compare by date; only one expiring sorts first; two lots with neither
// expiring fall back to received-date FIFO; lot-tracked sources sort before
// non-lot sources, and two non-lot sources tie. ok is false when a and b tie and the
// caller should fall through to the pick-sequence tiebreak.
func compareExpiry(a, b *Lot) (less bool, ok bool) {
	if a == nil && b == nil {
		return false, false
	}
	if a == nil {
		return false, true // sources without a lot sort after sources with one
	}
	if b == nil {
		return true, true
	}
	switch {
	case a.ExpirationDate != nil && b.ExpirationDate != nil:
		if a.ExpirationDate.Equal(*b.ExpirationDate) {
			return false, false
		}
		return a.ExpirationDate.Before(*b.ExpirationDate), true
	case a.ExpirationDate != nil:
		return true, true
	case b.ExpirationDate != nil:
		return false, true
	default:
		if a.ReceivedDate.Equal(b.ReceivedDate) {
			return false, false
		}
		return a.ReceivedDate.Before(b.ReceivedDate), true
	}
}
