package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/aggregate"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
)

// DefaultOnlineMarkers identify the lottery operator's online shop, which has no street address.
var DefaultOnlineMarkers = []string{"dhlottery.co.kr", "동행복권"}

// Limiter paces outgoing lookups.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// EnricherConfig tunes an enrichment pass.
type EnricherConfig struct {
	OnlineMarkers   []string
	CheckpointEvery int
}

// Checkpoint persists the registry mid-pass.
type Checkpoint func(ctx context.Context) error

// Tally counts the outcome of every record visited by a pass.
type Tally struct {
	Updated  int
	NotFound int
	Failed   int
	Skipped  int
	Online   int
}

// Enricher fills missing coordinates on registry records.
type Enricher struct {
	geocoder Geocoder
	limiter  Limiter
	markers  []string
	every    int
	logger   *zap.Logger
}

// NewEnricher wires a geocoder, an optional limiter and a logger.
func NewEnricher(g Geocoder, limiter Limiter, cfg EnricherConfig, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	markers := cfg.OnlineMarkers
	if len(markers) == 0 {
		markers = DefaultOnlineMarkers
	}
	return &Enricher{
		geocoder: g,
		limiter:  limiter,
		markers:  markers,
		every:    cfg.CheckpointEvery,
		logger:   logger.Named("geocode"),
	}
}

// IsOnline reports whether address names a non-physical store.
func (e *Enricher) IsOnline(address string) bool {
	for _, marker := range e.markers {
		if strings.Contains(address, marker) {
			return true
		}
	}
	return false
}

// Enrich visits every record without coordinates and resolves it. Existing coordinates are
// never overwritten. checkpoint, when set, runs every CheckpointEvery updates and once more at
// the end if anything changed since the last call.
func (e *Enricher) Enrich(ctx context.Context, reg *aggregate.Registry, checkpoint Checkpoint) (Tally, error) {
	var tally Tally
	pending := 0
	flush := func() error {
		if checkpoint == nil || pending == 0 {
			return nil
		}
		if err := checkpoint(ctx); err != nil {
			return fmt.Errorf("enrichment checkpoint: %w", err)
		}
		pending = 0
		return nil
	}

	for _, rec := range reg.Records() {
		if err := ctx.Err(); err != nil {
			return tally, errors.Join(err, flush())
		}
		switch {
		case e.IsOnline(rec.Address) || e.IsOnline(rec.Name):
			tally.Online++
			continue
		case strings.TrimSpace(rec.Address) == "":
			tally.Skipped++
			continue
		}
		if _, located := rec.Coordinates(); located {
			tally.Skipped++
			continue
		}

		coords, err := e.lookup(ctx, rec.Address)
		switch {
		case errors.Is(err, ErrNotFound):
			tally.NotFound++
			e.logger.Debug("address not found", zap.String("store", rec.Name), zap.String("address", rec.Address))
			continue
		case err != nil:
			if ctx.Err() != nil {
				return tally, errors.Join(ctx.Err(), flush())
			}
			tally.Failed++
			e.logger.Warn("geocode failed", zap.String("store", rec.Name), zap.Error(err))
			continue
		}

		reg.Update(rec.Key(), func(r *lotto.StoreRecord) {
			r.SetCoordinates(coords)
		})
		tally.Updated++
		pending++
		if e.every > 0 && pending >= e.every {
			if err := flush(); err != nil {
				return tally, err
			}
		}
	}
	return tally, flush()
}

// lookup geocodes address, retrying once with the cleaned address on a miss.
func (e *Enricher) lookup(ctx context.Context, address string) (lotto.Coordinates, error) {
	coords, err := e.geocode(ctx, address)
	if !errors.Is(err, ErrNotFound) {
		return coords, err
	}
	cleaned := CleanAddress(address)
	if cleaned == address || len([]rune(cleaned)) <= 2 {
		return lotto.Coordinates{}, ErrNotFound
	}
	return e.geocode(ctx, cleaned)
}

func (e *Enricher) geocode(ctx context.Context, address string) (lotto.Coordinates, error) {
	name := e.geocoder.Name()
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, name); err != nil {
			return lotto.Coordinates{}, err
		}
	}
	coords, err := e.geocoder.Geocode(ctx, address)
	switch {
	case err == nil:
		metrics.ObserveGeocode(name, "ok")
	case errors.Is(err, ErrNotFound):
		metrics.ObserveGeocode(name, "not_found")
	default:
		metrics.ObserveGeocode(name, "error")
	}
	return coords, err
}
