package crawl

import (
	"context"
	"time"

	"github.com/JakeFAU/lotto-store-crawler/internal/fetcher"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// Source fetches one resource with retries; *fetcher.Client satisfies it.
type Source interface {
	Do(ctx context.Context, req fetcher.Request) (fetcher.Response, error)
}

// Sleeper blocks for the delay between rounds.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Snapshot loads and saves one persisted document. Quarantine moves an undecodable document
// aside before it is replaced.
type Snapshot[T any] interface {
	Load(ctx context.Context) (T, error)
	Save(ctx context.Context, value T) error
	Quarantine(ctx context.Context) error
}

// CommitHook is told about every committed round. Hook errors are logged and never stop a run.
type CommitHook interface {
	RoundCommitted(ctx context.Context, runID string, rec lotto.DrawRecord) error
}

// RegistrySink receives the store registries after they were saved.
type RegistrySink interface {
	UpsertStores(ctx context.Context, active, retired []lotto.StoreRecord) error
}
