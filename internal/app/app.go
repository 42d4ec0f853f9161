// Package app initializes and holds long-lived application services, acting as a dependency
// injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/aggregate"
	"github.com/JakeFAU/lotto-store-crawler/internal/api"
	"github.com/JakeFAU/lotto-store-crawler/internal/clock/system"
	"github.com/JakeFAU/lotto-store-crawler/internal/config"
	"github.com/JakeFAU/lotto-store-crawler/internal/crawl"
	"github.com/JakeFAU/lotto-store-crawler/internal/dhlottery"
	"github.com/JakeFAU/lotto-store-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/lotto-store-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/lotto-store-crawler/internal/geocode"
	"github.com/JakeFAU/lotto-store-crawler/internal/id/uuid"
	"github.com/JakeFAU/lotto-store-crawler/internal/logging"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
	"github.com/JakeFAU/lotto-store-crawler/internal/moderation"
	"github.com/JakeFAU/lotto-store-crawler/internal/policy/ratelimit"
	pubsubpub "github.com/JakeFAU/lotto-store-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/lotto-store-crawler/internal/storage/gcs"
	"github.com/JakeFAU/lotto-store-crawler/internal/storage/postgres"
	"github.com/JakeFAU/lotto-store-crawler/internal/storage/snapshot"
)

// snapshots are the four persisted documents.
type snapshots struct {
	History *snapshot.Store[lotto.History]
	Latest  *snapshot.Store[lotto.DrawRecord]
	Active  *snapshot.Store[[]lotto.StoreRecord]
	Retired *snapshot.Store[[]lotto.StoreRecord]
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	snapshots snapshots

	gcsClient     *storage.Client
	draws         *postgres.DrawStore
	publisher     *pubsubpub.Publisher
	metricsServer *http.Server
}

// Load reads the config file (optional) and environment, builds the logger and the App.
func Load(ctx context.Context, path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return New(ctx, cfg, logger)
}

// New initializes the snapshot stores and every optional sink the configuration enables.
// It fails fast when an enabled sink cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()

	opts := []snapshot.Option{snapshot.WithLogger(logger)}
	if cfg.Storage.GCSBucket != "" {
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		mirror, mirrorErr := gcs.New(a.gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if mirrorErr != nil {
			return nil, mirrorErr
		}
		logger.Info("mirroring snapshots to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
		opts = append(opts, snapshot.WithMirror(mirror))
	}
	if a.snapshots, err = openSnapshots(cfg.Storage, opts...); err != nil {
		return nil, err
	}

	if cfg.Database.DSN != "" {
		a.draws, err = postgres.NewDrawStore(ctx, postgres.Config{
			DSN:      cfg.Database.DSN,
			MaxConns: int32(cfg.Database.MaxConns), //nolint:gosec // validated small pool sizes
			MinConns: int32(cfg.Database.MinConns), //nolint:gosec // validated small pool sizes
		})
		if err != nil {
			return nil, err
		}
		if err = a.draws.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.Info("postgres mirror enabled")
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		a.publisher, err = pubsubpub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing round events", zap.String("topic", cfg.PubSub.TopicName))
	}

	if cfg.Metrics.ListenAddr != "" {
		a.startMetricsServer(cfg.Metrics.ListenAddr)
	}
	return a, nil
}

func openSnapshots(cfg config.StorageConfig, opts ...snapshot.Option) (snapshots, error) {
	var (
		s   snapshots
		err error
	)
	if s.History, err = snapshot.New[lotto.History](cfg.DataDir, cfg.HistoryFile, opts...); err != nil {
		return s, err
	}
	if s.Latest, err = snapshot.New[lotto.DrawRecord](cfg.DataDir, cfg.LatestFile, opts...); err != nil {
		return s, err
	}
	if s.Active, err = snapshot.New[[]lotto.StoreRecord](cfg.DataDir, cfg.StoresFile, opts...); err != nil {
		return s, err
	}
	if s.Retired, err = snapshot.New[[]lotto.StoreRecord](cfg.DataDir, cfg.RetiredFile, opts...); err != nil {
		return s, err
	}
	return s, nil
}

func (a *App) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info("starting metrics server", zap.String("addr", addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Hooks returns the enabled commit hooks in call order.
func (a *App) Hooks() []crawl.CommitHook {
	var hooks []crawl.CommitHook
	if a.draws != nil {
		hooks = append(hooks, a.draws)
	}
	if a.publisher != nil {
		hooks = append(hooks, a.publisher)
	}
	return hooks
}

// Sink returns the registry mirror, or nil when none is configured.
func (a *App) Sink() crawl.RegistrySink {
	if a.draws == nil {
		return nil
	}
	return a.draws
}

// NewController wires the fetch client, endpoints and snapshots into a crawl controller.
func (a *App) NewController() (*crawl.Controller, error) {
	fcfg := a.cfg.FetcherConfig()
	clock := system.New()
	client, err := fetcher.New(fcfg, collyfetcher.New(fcfg), clock, a.logger)
	if err != nil {
		return nil, err
	}
	endpoints, err := dhlottery.New(a.cfg.Source.BaseURL, a.cfg.Source.GameNo)
	if err != nil {
		return nil, err
	}
	return crawl.NewController(a.cfg.CrawlConfig(), crawl.Deps{
		Source:     client,
		Endpoints:  endpoints,
		Extractors: crawl.DefaultExtractors(a.cfg.Source.NoResultTexts),
		Stores: crawl.Stores{
			History: a.snapshots.History,
			Latest:  a.snapshots.Latest,
			Active:  a.snapshots.Active,
			Retired: a.snapshots.Retired,
		},
		Sleeper: clock,
		IDs:     uuid.New(),
		Hooks:   a.Hooks(),
		Sink:    a.Sink(),
		Logger:  a.logger,
	})
}

// Geocoder builds the provider chain in configured order. Providers without a key are skipped.
func (a *App) Geocoder() (geocode.Geocoder, error) {
	gcfg := a.cfg.Geocode
	var chain geocode.Chain
	for _, name := range gcfg.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "kakao":
			if gcfg.Kakao.APIKey == "" {
				a.logger.Warn("kakao geocoder has no api key, skipping")
				continue
			}
			k, err := geocode.NewKakao(geocode.KakaoConfig{BaseURL: gcfg.Kakao.BaseURL, APIKey: gcfg.Kakao.APIKey, Timeout: a.cfg.GeocodeTimeout()})
			if err != nil {
				return nil, err
			}
			chain = append(chain, k)
		case "google":
			if gcfg.Google.APIKey == "" {
				a.logger.Warn("google geocoder has no api key, skipping")
				continue
			}
			g, err := geocode.NewGoogle(geocode.GoogleConfig{
				BaseURL:  gcfg.Google.BaseURL,
				APIKey:   gcfg.Google.APIKey,
				Language: gcfg.Google.Language,
				Timeout:  a.cfg.GeocodeTimeout(),
			})
			if err != nil {
				return nil, err
			}
			chain = append(chain, g)
		default:
			return nil, fmt.Errorf("unknown geocode provider %q", name)
		}
	}
	if len(chain) == 0 {
		return nil, errors.New("no geocode provider configured with an api key")
	}
	return chain, nil
}

// NewEnricher builds the enrichment pass over the configured geocoders.
func (a *App) NewEnricher() (*geocode.Enricher, error) {
	g, err := a.Geocoder()
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.Geocode.RPS, Burst: a.cfg.Geocode.Burst})
	return geocode.NewEnricher(g, limiter, geocode.EnricherConfig{
		OnlineMarkers:   a.cfg.Geocode.OnlineMarkers,
		CheckpointEvery: a.cfg.Geocode.CheckpointEvery,
	}, a.logger), nil
}

// APIServer returns the read-only HTTP server over the snapshots.
func (a *App) APIServer() *api.Server {
	return api.NewServer(api.Sources{
		History: a.snapshots.History,
		Latest:  a.snapshots.Latest,
		Active:  a.snapshots.Active,
		Retired: a.snapshots.Retired,
	}, a.logger)
}

// RebuildStores folds the whole history into a fresh registry, keeping feedback, phone numbers
// and coordinates of known stores. Retired stores stay retired.
func (a *App) RebuildStores(ctx context.Context) (aggregate.MergeStats, error) {
	history, err := a.snapshots.History.Load(ctx)
	if err != nil {
		return aggregate.MergeStats{}, fmt.Errorf("load history: %w", err)
	}
	previous, err := a.snapshots.Active.Load(ctx)
	if err != nil {
		if !errors.Is(err, snapshot.ErrCorrupt) {
			return aggregate.MergeStats{}, fmt.Errorf("load stores: %w", err)
		}
		a.logger.Warn("store registry corrupt, rebuilding without it", zap.Error(err))
	}
	retired, err := a.loadRetired(ctx)
	if err != nil {
		return aggregate.MergeStats{}, err
	}

	agg, stats := aggregate.Rebuild(history, aggregate.NewRegistry(previous), retired)
	if err := a.saveRegistries(ctx, agg.Active, agg.Retired); err != nil {
		return stats, err
	}
	a.logger.Info("store registry rebuilt",
		zap.Int("rounds", len(history)),
		zap.Int("stores", agg.Active.Len()),
		zap.Int("retired", agg.Retired.Len()),
		zap.Int("wins_added", stats.WinsAdded),
	)
	return stats, nil
}

// Moderate retires stores over the dislike threshold. A corrupt active registry is fatal.
func (a *App) Moderate(ctx context.Context) (moderation.Result, error) {
	records, err := a.snapshots.Active.Load(ctx)
	if err != nil {
		return moderation.Result{}, fmt.Errorf("load stores: %w", err)
	}
	retired, err := a.loadRetired(ctx)
	if err != nil {
		return moderation.Result{}, err
	}
	active := aggregate.NewRegistry(records)
	result := moderation.Moderate(active, retired, a.cfg.Moderation.DislikeThreshold)
	if !result.Changed() {
		a.logger.Info("no stores over the dislike threshold", zap.Int("stores", result.Remaining))
		return result, nil
	}
	if err := a.saveRegistries(ctx, active, retired); err != nil {
		return result, err
	}
	for _, rec := range result.Moved {
		a.logger.Info("store retired", zap.String("name", rec.Name), zap.String("address", rec.Address), zap.Int("dislikes", rec.Dislikes))
	}
	return result, nil
}

// Enrich fills missing coordinates and checkpoints the active registry as it goes.
func (a *App) Enrich(ctx context.Context) (geocode.Tally, error) {
	enricher, err := a.NewEnricher()
	if err != nil {
		return geocode.Tally{}, err
	}
	return a.enrichWith(ctx, enricher)
}

func (a *App) enrichWith(ctx context.Context, enricher *geocode.Enricher) (geocode.Tally, error) {
	records, err := a.snapshots.Active.Load(ctx)
	if err != nil {
		return geocode.Tally{}, fmt.Errorf("load stores: %w", err)
	}
	active := aggregate.NewRegistry(records)
	checkpoint := func(ctx context.Context) error {
		if err := a.snapshots.Active.Save(ctx, active.Records()); err != nil {
			return fmt.Errorf("save stores: %w", err)
		}
		return nil
	}
	tally, err := enricher.Enrich(ctx, active, checkpoint)
	if err != nil {
		return tally, err
	}
	if tally.Updated > 0 {
		retired, loadErr := a.loadRetired(ctx)
		if loadErr != nil {
			return tally, loadErr
		}
		a.sync(ctx, active, retired)
	}
	return tally, nil
}

func (a *App) loadRetired(ctx context.Context) (*aggregate.Registry, error) {
	records, err := a.snapshots.Retired.Load(ctx)
	if err != nil {
		if !errors.Is(err, snapshot.ErrCorrupt) {
			return nil, fmt.Errorf("load retired stores: %w", err)
		}
		a.logger.Warn("retired registry corrupt, treating as empty", zap.Error(err))
	}
	return aggregate.NewRegistry(records), nil
}

func (a *App) saveRegistries(ctx context.Context, active, retired *aggregate.Registry) error {
	if err := quarantineCorrupt(ctx, a.snapshots.Active); err != nil {
		return err
	}
	if err := quarantineCorrupt(ctx, a.snapshots.Retired); err != nil {
		return err
	}
	if err := a.snapshots.Active.Save(ctx, active.Records()); err != nil {
		return fmt.Errorf("save stores: %w", err)
	}
	if err := a.snapshots.Retired.Save(ctx, retired.Records()); err != nil {
		return fmt.Errorf("save retired stores: %w", err)
	}
	a.sync(ctx, active, retired)
	return nil
}

// quarantineCorrupt moves an undecodable snapshot aside before it is overwritten.
func quarantineCorrupt[T any](ctx context.Context, s *snapshot.Store[T]) error {
	if _, err := s.Load(ctx); !errors.Is(err, snapshot.ErrCorrupt) {
		return nil
	}
	return s.Quarantine(ctx)
}

func (a *App) sync(ctx context.Context, active, retired *aggregate.Registry) {
	sink := a.Sink()
	if sink == nil {
		return
	}
	if err := sink.UpsertStores(context.WithoutCancel(ctx), active.Records(), retired.Records()); err != nil {
		a.logger.Warn("registry mirror failed", zap.Error(err))
	}
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() error {
	var err error
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, a.metricsServer.Shutdown(ctx))
	}
	if a.publisher != nil {
		err = multierr.Append(err, a.publisher.Close())
	}
	if a.draws != nil {
		a.draws.Close()
	}
	if a.gcsClient != nil {
		err = multierr.Append(err, a.gcsClient.Close())
	}
	if syncErr := a.logger.Sync(); syncErr != nil && !isStdSyncErr(syncErr) {
		err = multierr.Append(err, syncErr)
	}
	return err
}

// isStdSyncErr reports the harmless error zap returns when syncing a terminal's stdout/stderr.
func isStdSyncErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
