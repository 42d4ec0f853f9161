package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// DefaultKakaoBaseURL is the Kakao Local API host.
const DefaultKakaoBaseURL = "https://dapi.kakao.com"

// KakaoConfig configures the Kakao Local address search client.
type KakaoConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Kakao geocodes through the Kakao Local address search.
type Kakao struct {
	client *resty.Client
}

type kakaoResponse struct {
	Documents []struct {
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"documents"`
}

// NewKakao builds a Kakao client. The REST API key is required.
func NewKakao(cfg KakaoConfig) (*Kakao, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("kakao: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultKakaoBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "KakaoAK "+cfg.APIKey).
		SetHeader("Accept", "application/json")
	return &Kakao{client: client}, nil
}

// Name implements Geocoder.
func (k *Kakao) Name() string {
	return "kakao"
}

// Geocode implements Geocoder.
func (k *Kakao) Geocode(ctx context.Context, address string) (lotto.Coordinates, error) {
	var out kakaoResponse
	resp, err := k.client.R().
		SetContext(ctx).
		SetQueryParam("query", address).
		SetResult(&out).
		Get("/v2/local/search/address.json")
	if err != nil {
		return lotto.Coordinates{}, fmt.Errorf("kakao: request: %w", err)
	}
	if resp.IsError() {
		return lotto.Coordinates{}, fmt.Errorf("kakao: unexpected status %d", resp.StatusCode())
	}
	if len(out.Documents) == 0 {
		return lotto.Coordinates{}, ErrNotFound
	}
	doc := out.Documents[0]
	lat, err := strconv.ParseFloat(doc.Y, 64)
	if err != nil {
		return lotto.Coordinates{}, fmt.Errorf("kakao: parse latitude %q: %w", doc.Y, err)
	}
	lng, err := strconv.ParseFloat(doc.X, 64)
	if err != nil {
		return lotto.Coordinates{}, fmt.Errorf("kakao: parse longitude %q: %w", doc.X, err)
	}
	return lotto.Coordinates{Lat: lat, Lng: lng}, nil
}
