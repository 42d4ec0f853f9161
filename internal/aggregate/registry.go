// Package aggregate folds store appearances from draw records into the keyed store registry.
package aggregate

import (
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// Registry is an ordered collection of store records keyed by their normalized (name, address).
// Order is insertion order, which is what the JSON snapshot preserves.
type Registry struct {
	records []lotto.StoreRecord
	index   map[string]int
}

// NewRegistry builds a registry from persisted records. Records that normalize to the same key
// are folded into the first one.
func NewRegistry(records []lotto.StoreRecord) *Registry {
	r := &Registry{
		records: make([]lotto.StoreRecord, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, rec := range records {
		rec.Wins.Normalize()
		if idx, ok := r.index[rec.Key()]; ok {
			r.records[idx] = fold(r.records[idx], rec)
			continue
		}
		r.index[rec.Key()] = len(r.records)
		r.records = append(r.records, rec)
	}
	return r
}

// fold combines two persisted copies of the same store.
func fold(into, from lotto.StoreRecord) lotto.StoreRecord {
	for _, tier := range lotto.StoreTiers {
		for _, round := range from.Wins.Rounds(tier) {
			into.Wins.Add(tier, round)
		}
	}
	if into.Phone == "" {
		into.Phone = from.Phone
	}
	into.Likes = max(into.Likes, from.Likes)
	into.Dislikes = max(into.Dislikes, from.Dislikes)
	if _, ok := into.Coordinates(); !ok {
		into.Lat, into.Lng = from.Lat, from.Lng
	}
	return into
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// Has reports whether key is present.
func (r *Registry) Has(key string) bool {
	_, ok := r.index[key]
	return ok
}

// Get returns the record stored under key.
func (r *Registry) Get(key string) (lotto.StoreRecord, bool) {
	idx, ok := r.index[key]
	if !ok {
		return lotto.StoreRecord{}, false
	}
	return r.records[idx], true
}

// Update applies fn to the record under key in place.
func (r *Registry) Update(key string, fn func(*lotto.StoreRecord)) bool {
	idx, ok := r.index[key]
	if !ok {
		return false
	}
	fn(&r.records[idx])
	return true
}

// Upsert replaces the record with the same key in place, or appends it. It reports whether the
// record was new.
func (r *Registry) Upsert(rec lotto.StoreRecord) bool {
	key := rec.Key()
	if idx, ok := r.index[key]; ok {
		r.records[idx] = rec
		return false
	}
	r.index[key] = len(r.records)
	r.records = append(r.records, rec)
	return true
}

// Remove deletes the record under key, preserving the order of the rest.
func (r *Registry) Remove(key string) (lotto.StoreRecord, bool) {
	idx, ok := r.index[key]
	if !ok {
		return lotto.StoreRecord{}, false
	}
	removed := r.records[idx]
	r.records = append(r.records[:idx], r.records[idx+1:]...)
	delete(r.index, key)
	for i := idx; i < len(r.records); i++ {
		r.index[r.records[i].Key()] = i
	}
	return removed, true
}

// Records returns a copy of the records in registry order, ready to persist.
func (r *Registry) Records() []lotto.StoreRecord {
	out := make([]lotto.StoreRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Each calls fn with a pointer to every record in order; fn may mutate anything but the key.
func (r *Registry) Each(fn func(*lotto.StoreRecord)) {
	for i := range r.records {
		fn(&r.records[i])
	}
}
