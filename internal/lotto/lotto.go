// Package lotto defines the draw and store records shared by the crawl, aggregation, moderation
// and enrichment passes, along with their on-disk JSON shape.
package lotto

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Tier is a prize rank label as it appears in the persisted JSON.
type Tier string

// Prize tiers tracked by the crawler.
const (
	TierFirst  Tier = "1st"
	TierSecond Tier = "2nd"
	TierThird  Tier = "3rd"
)

// PrizeTiers lists every tier with a prize amount and winner count, in rank order.
var PrizeTiers = []Tier{TierFirst, TierSecond, TierThird}

// StoreTiers lists the tiers that carry store listings.
var StoreTiers = []Tier{TierFirst, TierSecond}

// Number domain of a 6/45 draw.
const (
	MinNumber      = 1
	MaxNumber      = 45
	NumbersPerDraw = 6
)

// ErrInvalidDraw marks draw fields that violate the number domain.
var ErrInvalidDraw = errors.New("invalid draw")

// StoreAppearance is one observation of a store winning a tier in one round.
type StoreAppearance struct {
	Name    string `json:"name"`
	Address string `json:"addr"`
	Method  string `json:"method,omitempty"`
}

// Key returns the normalized registry key of the appearance.
func (a StoreAppearance) Key() string {
	return NormalizeKey(a.Name, a.Address)
}

// Prize is the payout and winner count of a single tier.
type Prize struct {
	Amount  int64 `json:"prize"`
	Winners int64 `json:"winners"`
}

// StoreTierResult is a tier that also lists the stores that sold winning tickets.
type StoreTierResult struct {
	Prize
	Stores []StoreAppearance `json:"stores"`
}

// Result holds the per-tier outcome of one round.
type Result struct {
	First  StoreTierResult `json:"1st"`
	Second StoreTierResult `json:"2nd"`
	Third  Prize           `json:"3rd"`
}

// Prize returns the payout of the given tier.
func (r Result) Prize(tier Tier) Prize {
	switch tier {
	case TierFirst:
		return r.First.Prize
	case TierSecond:
		return r.Second.Prize
	case TierThird:
		return r.Third
	default:
		return Prize{}
	}
}

// SetPrize overwrites the payout of the given tier.
func (r *Result) SetPrize(tier Tier, p Prize) {
	switch tier {
	case TierFirst:
		r.First.Prize = p
	case TierSecond:
		r.Second.Prize = p
	case TierThird:
		r.Third = p
	}
}

// Stores returns the store listing of a store tier; other tiers have none.
func (r Result) Stores(tier Tier) []StoreAppearance {
	switch tier {
	case TierFirst:
		return r.First.Stores
	case TierSecond:
		return r.Second.Stores
	default:
		return nil
	}
}

// SetStores replaces the store listing of a store tier. A nil listing is stored as empty.
func (r *Result) SetStores(tier Tier, stores []StoreAppearance) {
	if stores == nil {
		stores = []StoreAppearance{}
	}
	switch tier {
	case TierFirst:
		r.First.Stores = stores
	case TierSecond:
		r.Second.Stores = stores
	}
}

// NewResult returns a zero result whose store listings are empty rather than null.
func NewResult() Result {
	return Result{
		First:  StoreTierResult{Stores: []StoreAppearance{}},
		Second: StoreTierResult{Stores: []StoreAppearance{}},
	}
}

// DrawRecord is the full parsed outcome of one round. Once persisted it is never mutated.
type DrawRecord struct {
	Round   int    `json:"round"`
	Date    string `json:"date"`
	Numbers []int  `json:"numbers"`
	Bonus   int    `json:"bonus"`
	Result  Result `json:"result"`
}

// Validate checks the round identifier and the number domain.
func (d DrawRecord) Validate() error {
	if d.Round <= 0 {
		return fmt.Errorf("%w: round must be > 0, got %d", ErrInvalidDraw, d.Round)
	}
	return ValidateNumbers(d.Numbers, d.Bonus)
}

// ValidateNumbers checks for six distinct main numbers and a distinct bonus, all within range.
func ValidateNumbers(numbers []int, bonus int) error {
	if len(numbers) != NumbersPerDraw {
		return fmt.Errorf("%w: expected %d numbers, got %d", ErrInvalidDraw, NumbersPerDraw, len(numbers))
	}
	seen := make(map[int]struct{}, NumbersPerDraw+1)
	for _, n := range append(slices.Clone(numbers), bonus) {
		if n < MinNumber || n > MaxNumber {
			return fmt.Errorf("%w: number %d outside %d-%d", ErrInvalidDraw, n, MinNumber, MaxNumber)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: number %d repeated", ErrInvalidDraw, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Wins maps store tiers to the rounds a store won in, newest first.
type Wins struct {
	First  []int `json:"1st"`
	Second []int `json:"2nd"`
}

// Rounds returns the win rounds of a tier.
func (w Wins) Rounds(tier Tier) []int {
	switch tier {
	case TierFirst:
		return w.First
	case TierSecond:
		return w.Second
	default:
		return nil
	}
}

// Add records a win for the tier. It reports false when the round was already present.
func (w *Wins) Add(tier Tier, round int) bool {
	var list *[]int
	switch tier {
	case TierFirst:
		list = &w.First
	case TierSecond:
		list = &w.Second
	default:
		return false
	}
	if slices.Contains(*list, round) {
		return false
	}
	*list = append(*list, round)
	sortDesc(*list)
	return true
}

// Latest returns the newest round across all tiers, or 0 when there is none.
func (w Wins) Latest() int {
	latest := 0
	for _, r := range w.First {
		latest = max(latest, r)
	}
	for _, r := range w.Second {
		latest = max(latest, r)
	}
	return latest
}

// Normalize sorts both lists descending, drops duplicates and replaces nil with empty lists.
func (w *Wins) Normalize() {
	w.First = dedupeDesc(w.First)
	w.Second = dedupeDesc(w.Second)
}

// StoreRecord is the aggregated entity for one physical or online store.
type StoreRecord struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Phone    string  `json:"phone"`
	Wins     Wins    `json:"wins"`
	Likes    int     `json:"likes"`
	Dislikes int     `json:"dislikes"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// NewStoreRecord returns a record for a first sighting: no wins, no feedback, no coordinates.
func NewStoreRecord(name, address string) StoreRecord {
	return StoreRecord{
		Name:    name,
		Address: address,
		Wins:    Wins{First: []int{}, Second: []int{}},
	}
}

// Key returns the normalized registry key of the record.
func (s StoreRecord) Key() string {
	return NormalizeKey(s.Name, s.Address)
}

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Coordinates returns the record's position and whether it has been resolved.
// The (0,0) pair on disk means "not yet looked up".
func (s StoreRecord) Coordinates() (Coordinates, bool) {
	if s.Lat == 0 && s.Lng == 0 {
		return Coordinates{}, false
	}
	return Coordinates{Lat: s.Lat, Lng: s.Lng}, true
}

// SetCoordinates stores a resolved position.
func (s *StoreRecord) SetCoordinates(c Coordinates) {
	s.Lat = c.Lat
	s.Lng = c.Lng
}

// NormalizeKey derives the registry key: every whitespace rune is removed from name and address
// and the two are joined with "|".
func NormalizeKey(name, address string) string {
	return stripSpace(name) + "|" + stripSpace(address)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func sortDesc(rounds []int) {
	slices.SortFunc(rounds, func(a, b int) int { return b - a })
}

func dedupeDesc(rounds []int) []int {
	if len(rounds) == 0 {
		return []int{}
	}
	out := slices.Clone(rounds)
	sortDesc(out)
	return slices.Compact(out)
}
