package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/aggregate"
	"github.com/JakeFAU/lotto-store-crawler/internal/dhlottery"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
	"github.com/JakeFAU/lotto-store-crawler/internal/storage/snapshot"
)

// ErrFirstRoundUnavailable is returned when a run could not obtain a single round.
var ErrFirstRoundUnavailable = errors.New("first round unavailable")

// PersistenceError means committed data could not be written. The run is Aborted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// State is the controller's position in the round cycle.
type State int

// Controller states.
const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateCommitted
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateCommitted:
		return "committed"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config tunes a crawl run.
type Config struct {
	RoundDelay      time.Duration
	CheckpointEvery int
	MaxRoundRetries int
	// StartRound, when above the persisted cursor, moves the cursor forward. The skipped rounds
	// are left out of history for good.
	StartRound int
}

// Validate reports invalid values.
func (c Config) Validate() error {
	if c.RoundDelay < 0 {
		return errors.New("round delay must be >= 0")
	}
	if c.CheckpointEvery < 0 {
		return errors.New("checkpoint interval must be >= 0")
	}
	if c.MaxRoundRetries < 0 {
		return errors.New("max round retries must be >= 0")
	}
	if c.StartRound < 0 {
		return errors.New("start round must be >= 0")
	}
	return nil
}

// Stores are the snapshots a run reads and writes.
type Stores struct {
	History Snapshot[lotto.History]
	Latest  Snapshot[lotto.DrawRecord]
	Active  Snapshot[[]lotto.StoreRecord]
	Retired Snapshot[[]lotto.StoreRecord]
}

// Deps are the collaborators of a Controller. Hooks and Sink are optional.
type Deps struct {
	Source     Source
	Endpoints  dhlottery.Endpoints
	Extractors Extractors
	Stores     Stores
	Sleeper    Sleeper
	IDs        IDGenerator
	Hooks      []CommitHook
	Sink       RegistrySink
	Logger     *zap.Logger
}

// Tally summarizes a run.
type Tally struct {
	RunID       string
	StartRound  int
	NextRound   int
	Committed   int
	Degraded    int
	Unavailable int
	HookErrors  int
	Checkpoints int
	Rebuilt     bool
	Stalled     bool
	Merge       aggregate.MergeStats
}

// Controller drives the iterator over rounds and commits each round to the history and the
// store registries.
type Controller struct {
	cfg   Config
	deps  Deps
	state State
	log   *zap.Logger
}

// NewController validates cfg and deps.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Source == nil:
		return nil, errors.New("crawl: source is required")
	case deps.Stores.History == nil || deps.Stores.Active == nil || deps.Stores.Retired == nil:
		return nil, errors.New("crawl: history and registry snapshots are required")
	case deps.Sleeper == nil:
		return nil, errors.New("crawl: sleeper is required")
	case deps.Extractors.Draw == nil || deps.Extractors.Prizes == nil || deps.Extractors.Stores == nil:
		return nil, errors.New("crawl: extractors are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, deps: deps, state: StateIdle, log: deps.Logger.Named("crawl")}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) transition(s State) {
	c.state = s
}

// run is the mutable state of one Run call.
type run struct {
	id      string
	history lotto.History
	agg     *aggregate.Aggregator
	dirty   bool
	pending int
	log     *zap.Logger
	tally   Tally
}

// Run crawls from the persisted cursor until the source reports the end, the same round stays
// unavailable past the retry budget, or ctx is cancelled. A started round always completes;
// cancellation is observed between rounds and followed by a final flush.
func (c *Controller) Run(ctx context.Context) (Tally, error) {
	c.transition(StateIdle)
	r, err := c.load(ctx)
	if err != nil {
		c.transition(StateAborted)
		return Tally{}, err
	}

	start := r.history.NextRound()
	if c.cfg.StartRound > start {
		r.log.Warn("start round override skips rounds",
			zap.Int("cursor", start), zap.Int("start_round", c.cfg.StartRound), zap.Int("skipped", c.cfg.StartRound-start))
		start = c.cfg.StartRound
	}
	r.tally.StartRound = start
	it := NewIterator(c.deps.Source, c.deps.Endpoints, c.deps.Extractors, start, r.log)
	it.observe = c.transition
	r.log.Info("crawl starting", zap.Int("next_round", start))

	runErr := c.loop(ctx, it, r)
	r.tally.NextRound = it.Peek()
	metrics.SetNextRound(it.Peek())

	var perr *PersistenceError
	if errors.As(runErr, &perr) {
		c.transition(StateAborted)
		return r.tally, runErr
	}
	if err := c.flush(context.WithoutCancel(ctx), r, true); err != nil {
		c.transition(StateAborted)
		return r.tally, err
	}
	c.transition(StateDone)
	r.log.Info("crawl finished",
		zap.Int("committed", r.tally.Committed),
		zap.Int("degraded", r.tally.Degraded),
		zap.Int("unavailable", r.tally.Unavailable),
		zap.Int("next_round", r.tally.NextRound),
		zap.Bool("stalled", r.tally.Stalled),
	)
	return r.tally, runErr
}

func (c *Controller) load(ctx context.Context) (*run, error) {
	r := &run{log: c.log}
	if c.deps.IDs != nil {
		id, err := c.deps.IDs.NewID()
		if err != nil {
			return nil, fmt.Errorf("crawl: run id: %w", err)
		}
		r.id = id
		r.log = c.log.With(zap.String("run_id", id))
	}
	r.tally.RunID = r.id

	history, err := c.deps.Stores.History.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrCorrupt):
		r.log.Warn("history unreadable, starting from an empty history", zap.Error(err))
		if qErr := c.deps.Stores.History.Quarantine(ctx); qErr != nil {
			return nil, &PersistenceError{Op: "quarantine history", Err: qErr}
		}
	case err != nil:
		return nil, &PersistenceError{Op: "load history", Err: err}
	}
	history.Sort()
	r.history = history

	retired, err := c.deps.Stores.Retired.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrCorrupt):
		r.log.Warn("retired registry unreadable, treating as empty", zap.Error(err))
		if qErr := c.deps.Stores.Retired.Quarantine(ctx); qErr != nil {
			return nil, &PersistenceError{Op: "quarantine retired registry", Err: qErr}
		}
	case err != nil:
		return nil, &PersistenceError{Op: "load retired registry", Err: err}
	}
	retiredReg := aggregate.NewRegistry(retired)

	active, err := c.deps.Stores.Active.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrCorrupt):
		r.log.Warn("store registry unreadable, rebuilding from history", zap.Error(err))
		if qErr := c.deps.Stores.Active.Quarantine(ctx); qErr != nil {
			return nil, &PersistenceError{Op: "quarantine store registry", Err: qErr}
		}
		agg, stats := aggregate.Rebuild(r.history, nil, retiredReg)
		r.agg = agg
		r.dirty = true
		r.tally.Rebuilt = true
		r.tally.Merge.Add(stats)
	case err != nil:
		return nil, &PersistenceError{Op: "load store registry", Err: err}
	default:
		r.agg = aggregate.New(aggregate.NewRegistry(active), retiredReg)
	}
	return r, nil
}

func (c *Controller) loop(ctx context.Context, it *Iterator, r *run) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			r.log.Info("crawl interrupted", zap.Int("next_round", it.Peek()))
			return ctx.Err()
		}

		round, err := it.Next(context.WithoutCancel(ctx))
		var unavailable *RoundUnavailableError
		switch {
		case errors.Is(err, ErrDone):
			metrics.ObserveRound("done")
			r.log.Info("source reports no further rounds", zap.Int("round", it.Peek()))
			return nil
		case errors.As(err, &unavailable):
			metrics.ObserveRound("unavailable")
			r.tally.Unavailable++
			failures++
			r.log.Warn("round unavailable", zap.Int("round", unavailable.Round), zap.Int("failures", failures), zap.Error(err))
			if unavailable.Terminal || failures > c.cfg.MaxRoundRetries {
				r.tally.Stalled = true
				if r.tally.Committed == 0 {
					return fmt.Errorf("%w: %w", ErrFirstRoundUnavailable, err)
				}
				return nil
			}
		case err != nil:
			return err
		default:
			failures = 0
			if err := c.commit(ctx, r, round); err != nil {
				return err
			}
		}

		if err := c.deps.Sleeper.Sleep(ctx, c.cfg.RoundDelay); err != nil {
			r.log.Debug("round delay interrupted", zap.Error(err))
		}
	}
}

func (c *Controller) commit(ctx context.Context, r *run, round Round) error {
	rec := round.Record
	history, inserted := r.history.Insert(rec)
	if !inserted {
		r.log.Warn("round already persisted, not overwriting", zap.Int("round", rec.Round))
		return nil
	}
	r.history = history
	r.tally.Merge.Add(r.agg.Merge(rec))
	r.tally.Committed++
	r.dirty = true
	r.pending++
	c.transition(StateCommitted)

	status := "committed"
	if len(round.Degraded) > 0 {
		status = "degraded"
		r.tally.Degraded++
	}
	metrics.ObserveRound(status)
	metrics.SetNextRound(rec.Round + 1)
	r.log.Info("round committed",
		zap.Int("round", rec.Round),
		zap.String("date", rec.Date),
		zap.Ints("numbers", rec.Numbers),
		zap.Int("first_tier_stores", len(rec.Result.First.Stores)),
		zap.Int("second_tier_stores", len(rec.Result.Second.Stores)),
		zap.Strings("degraded", round.Degraded),
	)

	for _, hook := range c.deps.Hooks {
		if err := hook.RoundCommitted(context.WithoutCancel(ctx), r.id, rec); err != nil {
			r.tally.HookErrors++
			r.log.Warn("commit hook failed", zap.Int("round", rec.Round), zap.Error(err))
		}
	}

	if c.cfg.CheckpointEvery > 0 && r.pending >= c.cfg.CheckpointEvery {
		if err := c.flush(context.WithoutCancel(ctx), r, false); err != nil {
			return err
		}
	}
	return nil
}

// flush saves the history and registries when anything changed. The final flush also writes the
// latest round and hands the registries to the sink.
func (c *Controller) flush(ctx context.Context, r *run, final bool) error {
	if !r.dirty {
		return nil
	}
	r.history.Sort()
	if err := c.deps.Stores.History.Save(ctx, r.history); err != nil {
		return &PersistenceError{Op: "save history", Err: err}
	}
	active, retired := r.agg.Active.Records(), r.agg.Retired.Records()
	if err := c.deps.Stores.Active.Save(ctx, active); err != nil {
		return &PersistenceError{Op: "save store registry", Err: err}
	}
	if err := c.deps.Stores.Retired.Save(ctx, retired); err != nil {
		return &PersistenceError{Op: "save retired registry", Err: err}
	}
	r.pending = 0
	metrics.ObserveCheckpoint()
	r.tally.Checkpoints++
	r.log.Debug("checkpoint written", zap.Int("rounds", len(r.history)), zap.Bool("final", final))

	if !final {
		return nil
	}
	r.dirty = false
	if latest, ok := r.history.Latest(); ok && c.deps.Stores.Latest != nil && r.tally.Committed > 0 {
		if err := c.deps.Stores.Latest.Save(ctx, latest); err != nil {
			return &PersistenceError{Op: "save latest", Err: err}
		}
	}
	if c.deps.Sink != nil {
		if err := c.deps.Sink.UpsertStores(ctx, active, retired); err != nil {
			r.log.Warn("registry sink failed", zap.Error(err))
		}
	}
	return nil
}
