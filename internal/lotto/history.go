package lotto

import (
	"slices"
)

// History is the persisted draw log, newest round first.
type History []DrawRecord

// MaxRound returns the highest persisted round, or 0 for an empty history.
func (h History) MaxRound() int {
	highest := 0
	for _, rec := range h {
		highest = max(highest, rec.Round)
	}
	return highest
}

// NextRound is the crawl cursor: one past the highest persisted round.
func (h History) NextRound() int {
	return h.MaxRound() + 1
}

// Contains reports whether the round is already persisted.
func (h History) Contains(round int) bool {
	return slices.ContainsFunc(h, func(rec DrawRecord) bool { return rec.Round == round })
}

// Find returns the record for a round.
func (h History) Find(round int) (DrawRecord, bool) {
	idx := slices.IndexFunc(h, func(rec DrawRecord) bool { return rec.Round == round })
	if idx < 0 {
		return DrawRecord{}, false
	}
	return h[idx], true
}

// Latest returns the newest record.
func (h History) Latest() (DrawRecord, bool) {
	if len(h) == 0 {
		return DrawRecord{}, false
	}
	newest := h[0]
	for _, rec := range h[1:] {
		if rec.Round > newest.Round {
			newest = rec
		}
	}
	return newest, true
}

// Insert places a new record at the head. Persisted rounds are immutable, so a record for a round
// that is already present is ignored and Insert reports false.
func (h History) Insert(rec DrawRecord) (History, bool) {
	if h.Contains(rec.Round) {
		return h, false
	}
	out := append(History{rec}, h...)
	out.Sort()
	return out, true
}

// Sort orders the history by round, newest first.
func (h History) Sort() {
	slices.SortStableFunc(h, func(a, b DrawRecord) int { return b.Round - a.Round })
}
