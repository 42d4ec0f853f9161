// Package crawl walks the source's rounds in order, from the persisted cursor to the first round
// the source reports as nonexistent, committing each one to the history and store registries.
package crawl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/dhlottery"
	"github.com/JakeFAU/lotto-store-crawler/internal/extract"
	"github.com/JakeFAU/lotto-store-crawler/internal/fetcher"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
)

// ErrDone is returned by Iterator.Next once the source answers that the round does not exist.
var ErrDone = errors.New("no more rounds")

// RoundUnavailableError means the round could not be obtained now. The iterator did not advance.
type RoundUnavailableError struct {
	Round int
	// Terminal is set when the source refused the request outright rather than failing
	// transiently; retrying the same round is pointless.
	Terminal bool
	Err      error
}

func (e *RoundUnavailableError) Error() string {
	return fmt.Sprintf("round %d unavailable: %v", e.Round, e.Err)
}

func (e *RoundUnavailableError) Unwrap() error {
	return e.Err
}

// Degradation groups reported on a Round.
const (
	DegradedPrize    = "prize"
	DegradedStores   = "stores"
	DegradedDrawHTML = "draw_html"
)

// Round is one extracted draw. Degraded lists the secondary groups that were defaulted.
type Round struct {
	Record   lotto.DrawRecord
	Degraded []string
}

// Extractors bundles the strategies used per payload.
type Extractors struct {
	Draw         extract.DrawStrategy
	DrawFallback extract.DrawStrategy
	Prizes       extract.PrizeStrategy
	Stores       extract.StoreStrategy
}

// DefaultExtractors returns the strategies for the results site.
func DefaultExtractors(noResultTexts []string) Extractors {
	return Extractors{
		Draw:         extract.JSONDrawStrategy{},
		DrawFallback: extract.HTMLDrawStrategy{},
		Prizes:       extract.NewTablePrizeStrategy(),
		Stores:       extract.NewTableStoreStrategy(noResultTexts),
	}
}

// Iterator owns the crawl cursor. Next only advances after a round was fully extracted.
type Iterator struct {
	source    Source
	endpoints dhlottery.Endpoints
	ex        Extractors
	next      int
	observe   func(State)
	logger    *zap.Logger
}

// NewIterator starts at round start, which must be at least 1.
func NewIterator(source Source, endpoints dhlottery.Endpoints, ex Extractors, start int, logger *zap.Logger) *Iterator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Iterator{
		source:    source,
		endpoints: endpoints,
		ex:        ex,
		next:      max(start, 1),
		observe:   func(State) {},
		logger:    logger,
	}
}

// Peek returns the round the next call to Next will fetch.
func (it *Iterator) Peek() int {
	return it.next
}

// Next fetches and extracts the cursor round. It returns ErrDone when the source says the round
// does not exist and *RoundUnavailableError when the round could not be obtained now.
func (it *Iterator) Next(ctx context.Context) (Round, error) {
	round := it.next
	log := it.logger.With(zap.Int("round", round))

	it.observe(StateFetching)
	drawResp, err := it.source.Do(ctx, it.endpoints.Draw(round))
	if err != nil {
		return Round{}, unavailable(round, err)
	}

	it.observe(StateExtracting)
	var (
		out       Round
		prizeBody []byte
		prizeErr  error
		prizeDone bool
	)
	fetchPrize := func() ([]byte, error) {
		if !prizeDone {
			resp, err := it.source.Do(ctx, it.endpoints.Prize(round))
			prizeBody, prizeErr, prizeDone = resp.Body, err, true
		}
		return prizeBody, prizeErr
	}

	fields, err := it.ex.Draw.ExtractDraw(drawResp.Body)
	switch {
	case errors.Is(err, extract.ErrRoundNotFound):
		return Round{}, ErrDone
	case err != nil:
		log.Warn("draw api unreadable, trying results page", zap.Error(err))
		fields, err = it.drawFromPage(fetchPrize)
		if err != nil {
			return Round{}, &RoundUnavailableError{Round: round, Err: err}
		}
		out.Degraded = append(out.Degraded, DegradedDrawHTML)
	}
	if fields.Round != round {
		return Round{}, &RoundUnavailableError{
			Round: round,
			Err:   fmt.Errorf("%w: source answered round %d", extract.ErrMalformed, fields.Round),
		}
	}

	rec := lotto.DrawRecord{
		Round:   round,
		Date:    fields.Date,
		Numbers: fields.Numbers,
		Bonus:   fields.Bonus,
		Result:  lotto.NewResult(),
	}
	if err := rec.Validate(); err != nil {
		return Round{}, &RoundUnavailableError{Round: round, Err: err}
	}

	if !it.applyPrizes(&rec, fetchPrize, log) {
		out.Degraded = append(out.Degraded, DegradedPrize)
	}
	if !it.applyStores(ctx, &rec, log) {
		out.Degraded = append(out.Degraded, DegradedStores)
	}
	for _, group := range out.Degraded {
		metrics.ObserveDegraded(group)
	}

	out.Record = rec
	it.next++
	return out, nil
}

func (it *Iterator) drawFromPage(fetchPrize func() ([]byte, error)) (extract.DrawFields, error) {
	if it.ex.DrawFallback == nil {
		return extract.DrawFields{}, extract.ErrMalformed
	}
	body, err := fetchPrize()
	if err != nil {
		return extract.DrawFields{}, err
	}
	return it.ex.DrawFallback.ExtractDraw(body)
}

// applyPrizes fills the tier payouts; any failure leaves the affected tiers at zero.
func (it *Iterator) applyPrizes(rec *lotto.DrawRecord, fetchPrize func() ([]byte, error), log *zap.Logger) bool {
	body, err := fetchPrize()
	if err != nil {
		log.Warn("prize page unavailable, defaulting prizes", zap.Error(err))
		return false
	}
	res, err := it.ex.Prizes.ExtractPrizes(body)
	for _, tier := range lotto.PrizeTiers {
		rec.Result.SetPrize(tier, res.Prizes[tier])
	}
	if err != nil || !res.OK() {
		log.Warn("prize table incomplete", zap.Any("missing_tiers", res.Missing), zap.Error(err))
		return false
	}
	return true
}

// applyStores fills the store listings; any failure leaves them empty.
func (it *Iterator) applyStores(ctx context.Context, rec *lotto.DrawRecord, log *zap.Logger) bool {
	resp, err := it.source.Do(ctx, it.endpoints.Stores(rec.Round))
	if err != nil {
		log.Warn("store listing unavailable, defaulting stores", zap.Error(err))
		return false
	}
	res, err := it.ex.Stores.ExtractStores(resp.Body)
	for _, tier := range lotto.StoreTiers {
		rec.Result.SetStores(tier, res.Stores[tier])
	}
	if res.Skipped > 0 {
		log.Debug("skipped ragged store rows", zap.Int("rows", res.Skipped))
	}
	if err != nil || !res.OK() {
		log.Warn("store listing tables missing", zap.Int("tables", res.Tables), zap.Error(err))
		return false
	}
	return true
}

func unavailable(round int, err error) *RoundUnavailableError {
	terminal := false
	if f, ok := fetcher.IsFailure(err); ok {
		terminal = f.Terminal && f.StatusCode != 0
	}
	return &RoundUnavailableError{Round: round, Terminal: terminal, Err: err}
}
