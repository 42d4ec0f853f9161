package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// DefaultGoogleBaseURL is the Google Maps API host.
const DefaultGoogleBaseURL = "https://maps.googleapis.com"

// GoogleConfig configures the Google Geocoding client.
type GoogleConfig struct {
	BaseURL  string
	APIKey   string
	Language string
	Timeout  time.Duration
}

// Google geocodes through the Google Geocoding API.
type Google struct {
	client   *resty.Client
	apiKey   string
	language string
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NewGoogle builds a Google client. The API key is required.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Google{client: client, apiKey: cfg.APIKey, language: cfg.Language}, nil
}

// Name implements Geocoder.
func (g *Google) Name() string {
	return "google"
}

// Geocode implements Geocoder.
func (g *Google) Geocode(ctx context.Context, address string) (lotto.Coordinates, error) {
	var out googleResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"address":  address,
			"key":      g.apiKey,
			"language": g.language,
		}).
		SetResult(&out).
		Get("/maps/api/geocode/json")
	if err != nil {
		return lotto.Coordinates{}, fmt.Errorf("google: request: %w", err)
	}
	if resp.IsError() {
		return lotto.Coordinates{}, fmt.Errorf("google: unexpected status %d", resp.StatusCode())
	}
	switch out.Status {
	case "OK":
		if len(out.Results) == 0 {
			return lotto.Coordinates{}, ErrNotFound
		}
		loc := out.Results[0].Geometry.Location
		return lotto.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
	case "ZERO_RESULTS":
		return lotto.Coordinates{}, ErrNotFound
	default:
		return lotto.Coordinates{}, fmt.Errorf("google: status %s: %s", out.Status, out.ErrorMessage)
	}
}
