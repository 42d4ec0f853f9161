package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.MaxAttempts != 8 || cfg.HTTP.BackoffBaseMs != 2000 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if got := cfg.FetcherConfig().MinRequestDelay; got != time.Second {
		t.Fatalf("expected 1s request pacing, got %v", got)
	}
	if len(cfg.FetcherConfig().RetryStatuses) != 5 {
		t.Fatalf("expected default retry statuses, got %v", cfg.HTTP.RetryStatuses)
	}
	if got := cfg.CrawlConfig(); got.RoundDelay != 3*time.Second || got.CheckpointEvery != 10 {
		t.Fatalf("unexpected crawl defaults: %+v", got)
	}
	if cfg.Moderation.DislikeThreshold != 30 {
		t.Fatalf("expected dislike threshold 30, got %d", cfg.Moderation.DislikeThreshold)
	}
	if strings.Join(cfg.Geocode.Providers, ",") != "kakao,google" {
		t.Fatalf("unexpected providers %v", cfg.Geocode.Providers)
	}
	if cfg.Storage.RetiredFile != "retired_stores.json" {
		t.Fatalf("unexpected retired file %q", cfg.Storage.RetiredFile)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: debug
http:
  timeout_seconds: 30
  max_attempts: 3
  backoff_base_ms: 500
  retry_statuses: [503]
  insecure_skip_verify: true
source:
  base_url: http://127.0.0.1:9999
crawler:
  round_delay_ms: 0
  checkpoint_every: 5
  max_round_retries: 1
  start_round: 1000
storage:
  data_dir: /var/lib/lotto
  gcs_bucket: lotto-snapshots
moderation:
  dislike_threshold: 10
geocode:
  providers: [google]
  google:
    api_key: gkey
pubsub:
  project_id: proj
  topic_name: rounds
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	fc := cfg.FetcherConfig()
	if fc.MaxAttempts != 3 || fc.BackoffBase != 500*time.Millisecond || !fc.InsecureSkipVerify {
		t.Fatalf("expected fetcher overrides, got %+v", fc)
	}
	if len(fc.RetryStatuses) != 1 || fc.RetryStatuses[0] != 503 {
		t.Fatalf("expected retry statuses [503], got %v", fc.RetryStatuses)
	}
	cc := cfg.CrawlConfig()
	if cc.RoundDelay != 0 || cc.CheckpointEvery != 5 || cc.StartRound != 1000 {
		t.Fatalf("expected crawl overrides, got %+v", cc)
	}
	if cfg.Storage.DataDir != "/var/lib/lotto" || cfg.Storage.GCSBucket != "lotto-snapshots" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
	if cfg.Storage.HistoryFile != "lotto_history.json" {
		t.Fatalf("expected default history file to survive, got %q", cfg.Storage.HistoryFile)
	}
	if cfg.Geocode.Google.APIKey != "gkey" || cfg.Geocode.Google.Language != "ko" {
		t.Fatalf("expected google overrides, got %+v", cfg.Geocode.Google)
	}
	if cfg.Moderation.DislikeThreshold != 10 {
		t.Fatalf("expected threshold 10, got %d", cfg.Moderation.DislikeThreshold)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LOTTO_GEOCODE_KAKAO_API_KEY", "from-env")
	t.Setenv("LOTTO_MODERATION_DISLIKE_THRESHOLD", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Geocode.Kakao.APIKey != "from-env" {
		t.Fatalf("expected kakao key from env, got %q", cfg.Geocode.Kakao.APIKey)
	}
	if cfg.Moderation.DislikeThreshold != 12 {
		t.Fatalf("expected threshold 12, got %d", cfg.Moderation.DislikeThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:    HTTPConfig{TimeoutSeconds: 10, MaxAttempts: 1},
		Storage: StorageConfig{DataDir: "data"},
		Server:  ServerConfig{Port: 8080},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "invalid attempts",
			cfg: func() Config {
				c := base
				c.HTTP.MaxAttempts = 0
				return c
			}(),
			want: "http.max_attempts",
		},
		{
			name: "negative round delay",
			cfg: func() Config {
				c := base
				c.Crawler.RoundDelayMs = -1
				return c
			}(),
			want: "crawler.round_delay_ms",
		},
		{
			name: "missing data dir",
			cfg: func() Config {
				c := base
				c.Storage.DataDir = " "
				return c
			}(),
			want: "storage.data_dir",
		},
		{
			name: "unknown provider",
			cfg: func() Config {
				c := base
				c.Geocode.Providers = []string{"naver"}
				return c
			}(),
			want: "geocode.providers",
		},
		{
			name: "topic without project",
			cfg: func() Config {
				c := base
				c.PubSub.TopicName = "rounds"
				return c
			}(),
			want: "pubsub.project_id",
		},
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
