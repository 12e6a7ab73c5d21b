package docsync

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
)

// SessionFactory opens one portal session for one worker. The returned
// closer tears the session down when the worker drains.
type SessionFactory func(ctx context.Context) (Portal, func(), error)

// Result is the outcome of syncing one prospect.
type Result struct {
	Prospect auction.Prospect
	Stats    auction.SyncStats
	Err      error
}

// Runner fans prospects out over a fixed pool of workers. Each worker
// owns its own portal session; a prospect's documents are handled
// sequentially inside one worker so the portal never sees interleaved
// tab state.
type Runner struct {
	syncer     *Syncer
	newSession SessionFactory
	workers    int
	log        *zap.Logger
}

// NewRunner builds a Runner with the given parallelism.
func NewRunner(syncer *Syncer, factory SessionFactory, workers int, log *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{syncer: syncer, newSession: factory, workers: workers, log: log}
}

// Run syncs every prospect and returns the aggregate stats. The observe
// callback, when set, sees each prospect's result as it lands; it is
// called from worker goroutines. Per-prospect failures are reported
// through results, not returned; Run only errors when the context is
// canceled or no worker could open a session.
func (r *Runner) Run(ctx context.Context, prospects []auction.Prospect, observe func(Result)) (auction.SyncStats, error) {
	feed := make(chan auction.Prospect)
	results := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.work(ctx, worker, feed, results)
		}(i)
	}

	go func() {
		defer close(feed)
		for _, p := range prospects {
			select {
			case feed <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var total auction.SyncStats
	for res := range results {
		total.Add(res.Stats)
		if observe != nil {
			observe(res)
		}
	}
	return total, ctx.Err()
}

func (r *Runner) work(ctx context.Context, worker int, feed <-chan auction.Prospect, results chan<- Result) {
	portal, closeSession, sessionErr := r.newSession(ctx)
	if sessionErr != nil {
		r.log.Error("worker failed to open portal session",
			zap.Int("worker", worker), zap.Error(sessionErr))
	} else {
		defer closeSession()
	}

	for p := range feed {
		if ctx.Err() != nil {
			return
		}
		var res Result
		if sessionErr != nil {
			res = Result{Prospect: p, Err: fmt.Errorf("portal session unavailable: %w", sessionErr)}
		} else {
			stats, err := r.syncer.SyncProspect(ctx, portal, p)
			res = Result{Prospect: p, Stats: stats, Err: err}
		}
		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
}
