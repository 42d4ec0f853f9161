// Package geocode resolves store addresses to coordinates through third-party lookup providers
// and fills missing coordinates on the store registry.
package geocode

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/multierr"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// ErrNotFound means the provider answered but knows no position for the address.
var ErrNotFound = errors.New("address not found")

// Geocoder looks up the position of a postal address.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) (lotto.Coordinates, error)
}

// Chain asks each geocoder in order and returns the first position found.
type Chain []Geocoder

// Name joins the member names.
func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, g := range c {
		names = append(names, g.Name())
	}
	return strings.Join(names, "+")
}

// Geocode returns ErrNotFound only when every member reported not found; otherwise the
// provider errors are combined.
func (c Chain) Geocode(ctx context.Context, address string) (lotto.Coordinates, error) {
	var errs error
	for _, g := range c {
		coords, err := g.Geocode(ctx, address)
		if err == nil {
			return coords, nil
		}
		if ctx.Err() != nil {
			return lotto.Coordinates{}, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return lotto.Coordinates{}, errs
	}
	return lotto.Coordinates{}, ErrNotFound
}

// CleanAddress drops everything from the first parenthesis or comma on, which is where the
// source appends building names and floor details that providers fail to match.
func CleanAddress(address string) string {
	if idx := strings.IndexAny(address, "(,"); idx >= 0 {
		address = address[:idx]
	}
	return strings.TrimSpace(address)
}
