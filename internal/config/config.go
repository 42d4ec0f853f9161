// Package config loads and validates lotto crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/lotto-store-crawler/internal/crawl"
	"github.com/JakeFAU/lotto-store-crawler/internal/fetcher"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Source     SourceConfig     `mapstructure:"source"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Geocode    GeocodeConfig    `mapstructure:"geocode"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	BackoffBaseMs      int    `mapstructure:"backoff_base_ms"`
	RetryStatuses      []int  `mapstructure:"retry_statuses"`
	MinRequestDelayMs  int    `mapstructure:"min_request_delay_ms"`
	UserAgent          string `mapstructure:"user_agent"`
	Referer            string `mapstructure:"referer"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// SourceConfig points at the results site.
type SourceConfig struct {
	BaseURL       string   `mapstructure:"base_url"`
	GameNo        int      `mapstructure:"game_no"`
	NoResultTexts []string `mapstructure:"no_result_texts"`
}

// CrawlerConfig governs the round loop.
type CrawlerConfig struct {
	RoundDelayMs    int `mapstructure:"round_delay_ms"`
	CheckpointEvery int `mapstructure:"checkpoint_every"`
	MaxRoundRetries int `mapstructure:"max_round_retries"`
	// StartRound skips ahead of the archive. Rounds between the persisted cursor and it are
	// never fetched, and later runs resume after the newest archived round, so the gap stays.
	StartRound int `mapstructure:"start_round"`
}

// StorageConfig sets snapshot paths and the optional GCS mirror.
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	HistoryFile string `mapstructure:"history_file"`
	LatestFile  string `mapstructure:"latest_file"`
	StoresFile  string `mapstructure:"stores_file"`
	RetiredFile string `mapstructure:"retired_file"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
}

// ModerationConfig holds the retirement threshold.
type ModerationConfig struct {
	DislikeThreshold int `mapstructure:"dislike_threshold"`
}

// KakaoConfig holds Kakao Local credentials.
type KakaoConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GoogleConfig holds Google Geocoding credentials.
type GoogleConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
}

// GeocodeConfig controls the enrichment pass.
type GeocodeConfig struct {
	Providers       []string     `mapstructure:"providers"`
	Kakao           KakaoConfig  `mapstructure:"kakao"`
	Google          GoogleConfig `mapstructure:"google"`
	TimeoutSeconds  int          `mapstructure:"timeout_seconds"`
	RPS             float64      `mapstructure:"rps"`
	Burst           int          `mapstructure:"burst"`
	CheckpointEvery int          `mapstructure:"checkpoint_every"`
	OnlineMarkers   []string     `mapstructure:"online_markers"`
}

// DatabaseConfig controls the optional Postgres mirror.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for round-committed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig exposes Prometheus metrics during batch commands.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ServerConfig controls the read-only API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOTTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_attempts", 8)
	v.SetDefault("http.backoff_base_ms", 2000)
	v.SetDefault("http.retry_statuses", fetcher.DefaultRetryStatuses)
	v.SetDefault("http.min_request_delay_ms", 1000)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36")
	v.SetDefault("http.referer", "https://www.dhlottery.co.kr/common.do?method=main")
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("source.base_url", "https://www.dhlottery.co.kr")
	v.SetDefault("source.game_no", 5133)
	v.SetDefault("source.no_result_texts", []string{"조회 결과가 없습니다"})
	v.SetDefault("crawler.round_delay_ms", 3000)
	v.SetDefault("crawler.checkpoint_every", 10)
	v.SetDefault("crawler.max_round_retries", 3)
	v.SetDefault("crawler.start_round", 0)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.history_file", "lotto_history.json")
	v.SetDefault("storage.latest_file", "latest.json")
	v.SetDefault("storage.stores_file", "stores.json")
	v.SetDefault("storage.retired_file", "retired_stores.json")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("moderation.dislike_threshold", 30)
	v.SetDefault("geocode.providers", []string{"kakao", "google"})
	v.SetDefault("geocode.kakao.api_key", "")
	v.SetDefault("geocode.kakao.base_url", "https://dapi.kakao.com")
	v.SetDefault("geocode.google.api_key", "")
	v.SetDefault("geocode.google.base_url", "https://maps.googleapis.com")
	v.SetDefault("geocode.google.language", "ko")
	v.SetDefault("geocode.timeout_seconds", 10)
	v.SetDefault("geocode.rps", 10)
	v.SetDefault("geocode.burst", 1)
	v.SetDefault("geocode.checkpoint_every", 100)
	v.SetDefault("geocode.online_markers", []string{"dhlottery.co.kr", "동행복권"})
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffBaseMs < 0 || c.HTTP.MinRequestDelayMs < 0 {
		return fmt.Errorf("http.backoff_base_ms and http.min_request_delay_ms must be >= 0")
	}
	if c.Crawler.RoundDelayMs < 0 {
		return fmt.Errorf("crawler.round_delay_ms must be >= 0")
	}
	if c.Crawler.CheckpointEvery < 0 {
		return fmt.Errorf("crawler.checkpoint_every must be >= 0")
	}
	if c.Crawler.MaxRoundRetries < 0 {
		return fmt.Errorf("crawler.max_round_retries must be >= 0")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if c.Moderation.DislikeThreshold < 0 {
		return fmt.Errorf("moderation.dislike_threshold must be >= 0")
	}
	for _, p := range c.Geocode.Providers {
		if p != "kakao" && p != "google" {
			return fmt.Errorf("geocode.providers: unknown provider %q", p)
		}
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return fmt.Errorf("database.max_conns and database.min_conns must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// FetcherConfig converts the HTTP section into the fetch client's configuration.
func (c Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		Timeout:            time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
		MaxAttempts:        c.HTTP.MaxAttempts,
		BackoffBase:        time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond,
		RetryStatuses:      c.HTTP.RetryStatuses,
		MinRequestDelay:    time.Duration(c.HTTP.MinRequestDelayMs) * time.Millisecond,
		UserAgent:          c.HTTP.UserAgent,
		Referer:            c.HTTP.Referer,
		InsecureSkipVerify: c.HTTP.InsecureSkipVerify,
	}
}

// CrawlConfig converts the crawler section into the controller's configuration.
func (c Config) CrawlConfig() crawl.Config {
	return crawl.Config{
		RoundDelay:      time.Duration(c.Crawler.RoundDelayMs) * time.Millisecond,
		CheckpointEvery: c.Crawler.CheckpointEvery,
		MaxRoundRetries: c.Crawler.MaxRoundRetries,
		StartRound:      c.Crawler.StartRound,
	}
}

// GeocodeTimeout returns the per-request provider timeout.
func (c Config) GeocodeTimeout() time.Duration {
	return time.Duration(c.Geocode.TimeoutSeconds) * time.Second
}
