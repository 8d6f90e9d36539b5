package pager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// CollectConfig holds configuration for draining several listings at once.
type CollectConfig struct {
	// MaxConcurrency is the maximum number of listings drained in parallel.
	MaxConcurrency int

	// Timeout bounds the drain of each listing. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// DefaultCollectConfig returns a safe default configuration.
func DefaultCollectConfig() CollectConfig {
	return CollectConfig{
		MaxConcurrency: 10,
	}
}

// CollectAll drains independent pagers concurrently using a bounded worker
// pool. Each pager is still fetched strictly sequentially; results[i] holds
// the items of pagers[i] in order. The first error cancels the remaining
// drains and is returned.
func CollectAll[T any](ctx context.Context, pagers []*Pager[T], cfg CollectConfig) ([][]T, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}

	start := time.Now()
	results := make([][]T, len(pagers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	for i, p := range pagers {
		g.Go(func() error {
			drainCtx := gctx
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				drainCtx, cancel = context.WithTimeout(gctx, cfg.Timeout)
				defer cancel()
			}

			items, err := Collect(drainCtx, p)
			if err != nil {
				log.Warn().
					Err(err).
					Int("listing", i).
					Int("items", len(items)).
					Msg("Listing drain failed")
				return fmt.Errorf("listing %d: %w", i, err)
			}
			results[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	log.Debug().
		Int("listings", len(pagers)).
		Dur("duration", time.Since(start)).
		Msg("Collect complete")

	return results, nil
}
