package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// PrizeResult carries every tier; tiers listed in Missing defaulted to zero.
type PrizeResult struct {
	Prizes  map[lotto.Tier]lotto.Prize
	Missing []lotto.Tier
}

// OK reports whether every tier was read.
func (r PrizeResult) OK() bool {
	return len(r.Missing) == 0
}

// PrizeStrategy extracts per-tier payouts.
type PrizeStrategy interface {
	ExtractPrizes(payload []byte) (PrizeResult, error)
}

// TablePrizeStrategy reads the tier rows of the results table in rank order. Within a row it
// scans cells right to left for the first cell carrying the currency marker; the cell before it
// is the winner count.
type TablePrizeStrategy struct {
	RowSelector    string
	CurrencyMarker string
	CountMarker    string
}

// NewTablePrizeStrategy returns the strategy for the results site's layout.
func NewTablePrizeStrategy() TablePrizeStrategy {
	return TablePrizeStrategy{
		RowSelector:    ".tbl_data tbody tr",
		CurrencyMarker: "원",
		CountMarker:    "개",
	}
}

// ExtractPrizes never fails per tier; unreadable tiers are zeroed and reported in Missing.
// The error is reserved for payloads that are not markup at all.
func (s TablePrizeStrategy) ExtractPrizes(payload []byte) (PrizeResult, error) {
	result := PrizeResult{Prizes: make(map[lotto.Tier]lotto.Prize, len(lotto.PrizeTiers))}
	for _, tier := range lotto.PrizeTiers {
		result.Prizes[tier] = lotto.Prize{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		result.Missing = append(result.Missing, lotto.PrizeTiers...)
		return result, fmt.Errorf("%w: parse html: %v", ErrMalformed, err)
	}
	rows := doc.Find(s.RowSelector)
	for i, tier := range lotto.PrizeTiers {
		if i >= rows.Length() {
			result.Missing = append(result.Missing, tier)
			continue
		}
		prize, ok := s.parseRow(rows.Eq(i).Find("td"))
		if !ok {
			result.Missing = append(result.Missing, tier)
			continue
		}
		result.Prizes[tier] = prize
	}
	return result, nil
}

func (s TablePrizeStrategy) parseRow(cells *goquery.Selection) (lotto.Prize, bool) {
	prizeIdx := -1
	for i := cells.Length() - 1; i >= 0; i-- {
		if strings.Contains(cells.Eq(i).Text(), s.CurrencyMarker) {
			prizeIdx = i
			break
		}
	}
	if prizeIdx < 1 {
		return lotto.Prize{}, false
	}
	amount, err := parseCount(cells.Eq(prizeIdx).Text(), s.CurrencyMarker)
	if err != nil {
		return lotto.Prize{}, false
	}
	winners, err := parseCount(cells.Eq(prizeIdx-1).Text(), s.CountMarker)
	if err != nil {
		return lotto.Prize{}, false
	}
	return lotto.Prize{Amount: amount, Winners: winners}, true
}

// parseCount reads "1,234,567원" style figures.
func parseCount(text, marker string) (int64, error) {
	cleaned := strings.NewReplacer(",", "", marker, "").Replace(text)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse %q: negative", text)
	}
	return n, nil
}
