// Package moderation retires stores whose negative feedback crossed a threshold.
package moderation

import (
	"github.com/JakeFAU/lotto-store-crawler/internal/aggregate"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
)

// DefaultThreshold is the dislike count a store may reach before it is retired.
const DefaultThreshold = 30

// Result describes one moderation pass.
type Result struct {
	Moved     []lotto.StoreRecord
	Remaining int
	Retired   int
}

// Changed reports whether the pass moved anything, i.e. whether the registries need saving.
func (r Result) Changed() bool {
	return len(r.Moved) > 0
}

// Moderate moves every active record with more than threshold dislikes into retired. A record
// already present in retired is replaced in place, so repeated passes converge.
func Moderate(active, retired *aggregate.Registry, threshold int) Result {
	var flagged []string
	active.Each(func(rec *lotto.StoreRecord) {
		if rec.Dislikes > threshold {
			flagged = append(flagged, rec.Key())
		}
	})

	res := Result{}
	for _, key := range flagged {
		rec, ok := active.Remove(key)
		if !ok {
			continue
		}
		if existing, found := retired.Get(key); found {
			rec = carryWins(rec, existing)
		}
		retired.Upsert(rec)
		res.Moved = append(res.Moved, rec)
	}
	res.Remaining = active.Len()
	res.Retired = retired.Len()
	metrics.ObserveRetired(len(res.Moved))
	return res
}

// carryWins keeps win rounds the retired copy gathered that the active copy never saw.
func carryWins(rec, existing lotto.StoreRecord) lotto.StoreRecord {
	for _, tier := range lotto.StoreTiers {
		for _, round := range existing.Wins.Rounds(tier) {
			rec.Wins.Add(tier, round)
		}
	}
	return rec
}
