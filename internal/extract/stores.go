package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// Minimum cell counts of a usable listing row per tier.
const (
	minFirstTierCols  = 4
	minSecondTierCols = 3
)

// StoreResult holds listings for the store tiers. Skipped counts ragged rows that were dropped.
type StoreResult struct {
	Stores  map[lotto.Tier][]lotto.StoreAppearance
	Tables  int
	Skipped int
}

// OK reports whether at least the first-tier table was found.
func (r StoreResult) OK() bool {
	return r.Tables > 0
}

// StoreStrategy extracts store listings.
type StoreStrategy interface {
	ExtractStores(payload []byte) (StoreResult, error)
}

// TableStoreStrategy reads the listing tables of the store page. Only the trailing tables are
// listings: with two or more, the last two are the first and second tier; with one, it is the
// first tier.
type TableStoreStrategy struct {
	TableSelector string
	NoResultTexts []string
}

// NewTableStoreStrategy returns the strategy for the results site's layout.
func NewTableStoreStrategy(noResultTexts []string) TableStoreStrategy {
	if len(noResultTexts) == 0 {
		noResultTexts = []string{"조회 결과가 없습니다"}
	}
	return TableStoreStrategy{
		TableSelector: "table.tbl_data",
		NoResultTexts: noResultTexts,
	}
}

// ExtractStores returns empty listings rather than nil for tiers with no rows.
func (s TableStoreStrategy) ExtractStores(payload []byte) (StoreResult, error) {
	result := StoreResult{Stores: map[lotto.Tier][]lotto.StoreAppearance{
		lotto.TierFirst:  {},
		lotto.TierSecond: {},
	}}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("%w: parse html: %v", ErrMalformed, err)
	}

	tables := doc.Find(s.TableSelector)
	result.Tables = tables.Length()
	switch {
	case tables.Length() >= 2:
		s.readTable(tables.Eq(tables.Length()-2), lotto.TierFirst, &result)
		s.readTable(tables.Eq(tables.Length()-1), lotto.TierSecond, &result)
	case tables.Length() == 1:
		s.readTable(tables.Eq(0), lotto.TierFirst, &result)
	}
	return result, nil
}

func (s TableStoreStrategy) readTable(table *goquery.Selection, tier lotto.Tier, result *StoreResult) {
	minCols := minSecondTierCols
	if tier == lotto.TierFirst {
		minCols = minFirstTierCols
	}
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minCols {
			if cells.Length() > 0 && !s.isNoResult(row.Text()) {
				result.Skipped++
			}
			return
		}
		appearance := lotto.StoreAppearance{Name: collapse(cells.Eq(1).Text())}
		if tier == lotto.TierFirst {
			appearance.Method = collapse(cells.Eq(2).Text())
			appearance.Address = collapse(cells.Eq(3).Text())
		} else {
			appearance.Address = collapse(cells.Eq(2).Text())
		}
		if s.isNoResult(appearance.Name) {
			return
		}
		if appearance.Name == "" {
			result.Skipped++
			return
		}
		result.Stores[tier] = append(result.Stores[tier], appearance)
	})
}

func (s TableStoreStrategy) isNoResult(text string) bool {
	for _, sentinel := range s.NoResultTexts {
		if strings.Contains(text, sentinel) {
			return true
		}
	}
	return false
}
