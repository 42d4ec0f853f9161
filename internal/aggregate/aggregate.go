package aggregate

import (
	"strings"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// Aggregator merges draw records into the active registry. Stores already retired by moderation
// are updated in the retired registry instead of being recreated as active.
type Aggregator struct {
	Active  *Registry
	Retired *Registry
}

// New returns an aggregator over the two registries; nil registries start empty.
func New(active, retired *Registry) *Aggregator {
	if active == nil {
		active = NewRegistry(nil)
	}
	if retired == nil {
		retired = NewRegistry(nil)
	}
	return &Aggregator{Active: active, Retired: retired}
}

// MergeStats counts what a merge changed.
type MergeStats struct {
	Created        int
	WinsAdded      int
	RetiredUpdated int
}

// Add accumulates other into s.
func (s *MergeStats) Add(other MergeStats) {
	s.Created += other.Created
	s.WinsAdded += other.WinsAdded
	s.RetiredUpdated += other.RetiredUpdated
}

// Merge folds every tier 1 and tier 2 appearance of rec into the registries. Merging the same
// record again changes nothing, and the result does not depend on the order records arrive in.
func (a *Aggregator) Merge(rec lotto.DrawRecord) MergeStats {
	var stats MergeStats
	for _, tier := range lotto.StoreTiers {
		for _, appearance := range rec.Result.Stores(tier) {
			if strings.TrimSpace(appearance.Name) == "" {
				continue
			}
			stats.Add(a.mergeAppearance(tier, rec.Round, appearance))
		}
	}
	return stats
}

func (a *Aggregator) mergeAppearance(tier lotto.Tier, round int, appearance lotto.StoreAppearance) MergeStats {
	var stats MergeStats
	key := appearance.Key()
	apply := func(r *lotto.StoreRecord) {
		if preferDisplay(r, round, appearance) {
			r.Name = appearance.Name
			r.Address = appearance.Address
		}
		if r.Wins.Add(tier, round) {
			stats.WinsAdded++
		}
	}

	if a.Retired.Update(key, apply) {
		if stats.WinsAdded > 0 {
			stats.RetiredUpdated++
		}
		return stats
	}
	if !a.Active.Has(key) {
		a.Active.Upsert(lotto.NewStoreRecord(appearance.Name, appearance.Address))
		stats.Created++
	}
	a.Active.Update(key, apply)
	return stats
}

// preferDisplay decides whether an appearance's spelling should replace the stored one: the most
// recent round wins, and within a round the lexicographically smaller spelling wins.
func preferDisplay(r *lotto.StoreRecord, round int, appearance lotto.StoreAppearance) bool {
	latest := r.Wins.Latest()
	switch {
	case latest == 0 || round > latest:
		return true
	case round < latest:
		return false
	}
	if appearance.Name != r.Name {
		return appearance.Name < r.Name
	}
	return appearance.Address < r.Address
}

// Rebuild folds a whole history into a fresh active registry, honoring stores already retired.
// Likes, dislikes, phone and coordinates carried by previous records are preserved.
func Rebuild(history lotto.History, previous, retired *Registry) (*Aggregator, MergeStats) {
	agg := New(NewRegistry(nil), retired)
	var stats MergeStats
	for _, rec := range history {
		stats.Add(agg.Merge(rec))
	}
	if previous == nil {
		return agg, stats
	}
	agg.Active.Each(func(r *lotto.StoreRecord) {
		old, ok := previous.Get(r.Key())
		if !ok {
			return
		}
		r.Phone = old.Phone
		r.Likes = old.Likes
		r.Dislikes = old.Dislikes
		r.Lat, r.Lng = old.Lat, old.Lng
	})
	return agg, stats
}
