package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/clientrt/internal/config"
	"github.com/Sternrassler/clientrt/pkg/checkpoint"
	"github.com/Sternrassler/clientrt/pkg/client"
	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/Sternrassler/clientrt/pkg/pager"
	"github.com/Sternrassler/clientrt/pkg/poller"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// runner executes one listing walk or one operation.
type runner struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	store   *checkpoint.Store // nil when checkpointing is disabled
	out     *json.Encoder
	logger  zerolog.Logger
}

func newRunner(ctx context.Context, cfg *config.Config, out io.Writer, logger zerolog.Logger) (*runner, func(), error) {
	var redisClient *redis.Client
	if cfg.HTTP.Cache || cfg.Checkpoint.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	clientCfg := client.DefaultConfig(cfg.HTTP.UserAgent)
	clientCfg.BaseURL = cfg.HTTP.BaseURL
	clientCfg.Headers = cfg.HTTP.Headers
	clientCfg.Timeout = cfg.HTTP.Timeout
	clientCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	clientCfg.CacheTTL = cfg.HTTP.CacheTTL
	if cfg.HTTP.Cache {
		clientCfg.Redis = redisClient
	}

	httpClient, err := client.New(clientCfg)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	r := &runner{
		cfg:     cfg,
		fetcher: httpClient,
		out:     json.NewEncoder(out),
		logger:  logger,
	}

	if cfg.Checkpoint.Enabled {
		r.store, err = checkpoint.NewStore(redisClient, checkpoint.Config{
			Prefix: cfg.Checkpoint.Prefix,
			TTL:    cfg.Checkpoint.TTL,
		}, logger)
		if err != nil {
			httpClient.Close()
			redisClient.Close()
			return nil, nil, fmt.Errorf("create checkpoint store: %w", err)
		}
	}

	cleanup := func() {
		httpClient.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return r, cleanup, nil
}

// strategyFor maps a configured strategy name to a paging strategy.
func strategyFor(l *config.ListingConfig) (pager.Strategy, error) {
	switch l.Strategy {
	case config.StrategyNextLink:
		return pager.NextLink(l.NextPath, l.PreserveQuery...), nil
	case config.StrategyHeaderToken:
		return pager.HeaderToken(l.Header, l.RequestHeader), nil
	case config.StrategyQueryToken:
		return pager.QueryToken(l.NextPath, l.Param), nil
	case config.StrategyHeaderToQuery:
		return pager.HeaderToQuery(l.Header, l.Param), nil
	case config.StrategyBodyToken:
		return pager.BodyToken(l.NextPath, l.RequestPath), nil
	case config.StrategyPageCount:
		return pager.PageCount(l.Header, l.Param), nil
	case config.StrategySingle:
		return pager.Single(), nil
	default:
		return pager.Strategy{}, fmt.Errorf("unknown strategy %q", l.Strategy)
	}
}

func requestBody(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// walkListing prints every item of the listing and returns how many were
// written. With checkpointing, the marker is saved after every page and a
// later run continues from it.
func (r *runner) walkListing(ctx context.Context) (int, error) {
	l := r.cfg.Listing
	strategy, err := strategyFor(l)
	if err != nil {
		return 0, err
	}

	opts := []pager.Option{
		pager.WithOperation(l.Strategy),
		pager.WithLogger(r.logger),
	}

	items, pages := 0, 0
	if r.store != nil {
		cp, err := r.store.LoadMarker(ctx, r.cfg.Checkpoint.Name)
		switch {
		case errors.Is(err, checkpoint.ErrNotFound):
		case err != nil:
			return 0, fmt.Errorf("load checkpoint: %w", err)
		case cp.Marker.IsAbsent():
			r.logger.Info().Str("checkpoint", cp.Name).Msg("Listing already complete")
			return 0, nil
		default:
			r.logger.Info().
				Str("checkpoint", cp.Name).
				Str("marker", cp.Marker.String()).
				Int("items", cp.Items).
				Msg("Resuming listing")
			opts = append(opts, pager.WithContinuation(cp.Marker))
			items, pages = cp.Items, cp.Pages
		}
	}

	initial := fetch.NewRequest(l.Method, l.URL, requestBody(l.Body))
	it := pager.NewPages(initial, pager.JSONPages[json.RawMessage](r.fetcher, l.ItemsPath), strategy, opts...)
	defer it.Close()

	written := 0
	for page, err := range it.Pages(ctx) {
		if err != nil {
			return written, err
		}

		for _, item := range page.Items {
			if err := r.out.Encode(item); err != nil {
				return written, fmt.Errorf("write item: %w", err)
			}
			written++
		}
		items += len(page.Items)
		pages++

		if r.store != nil {
			if err := r.store.SaveMarker(ctx, r.cfg.Checkpoint.Name, it.ContinuationToken(), items, pages); err != nil {
				return written, fmt.Errorf("save checkpoint: %w", err)
			}
		}

		// Stops on a page boundary so the checkpoint never skips items.
		if l.MaxItems > 0 && written >= l.MaxItems {
			r.logger.Info().Int("items", written).Msg("Item limit reached")
			break
		}
	}
	return written, nil
}

func (r *runner) operation() poller.Operation[json.RawMessage] {
	o := r.cfg.Operation
	op := poller.Operation[json.RawMessage]{
		Fetcher: r.fetcher,
		Result:  poller.JSONResult[json.RawMessage](o.ResultPath),
	}
	op.Monitor = poller.HeaderMonitorWith(poller.MonitorOptions{
		Headers:        o.MonitorHeaders,
		PreserveQuery:  o.PreserveQuery,
		RequestHeaders: o.RequestHeaders,
	})
	if len(o.StatusPaths) > 0 {
		op.Status = poller.JSONStatus(o.StatusPaths...)
	}
	return op
}

func (r *runner) pollerOptions() poller.Options {
	o := r.cfg.Operation
	opts := poller.Options{
		Frequency: o.Frequency,
		Operation: "restwalk",
	}
	logger := r.logger
	opts.Logger = &logger

	if o.Backoff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = o.Frequency
		b.MaxElapsedTime = 0
		if o.MaxInterval > 0 {
			b.MaxInterval = o.MaxInterval
		}
		opts.Backoff = b
	}
	return opts
}

// start resumes the operation from a checkpoint or issues the initiating
// request.
func (r *runner) start(ctx context.Context) (*poller.Poller[json.RawMessage], error) {
	o := r.cfg.Operation

	if r.store != nil {
		token, err := r.store.LoadResumeToken(ctx, r.cfg.Checkpoint.Name)
		switch {
		case err == nil:
			r.logger.Info().Str("checkpoint", r.cfg.Checkpoint.Name).Msg("Resuming operation")
			return poller.Resume(token, r.operation(), r.pollerOptions())
		case !errors.Is(err, checkpoint.ErrNotFound):
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
	}

	req := fetch.NewRequest(o.Method, o.URL, requestBody(o.Body))
	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start operation: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("start operation: %w", fetch.StatusError(resp))
	}
	return poller.Start(resp, r.operation(), r.pollerOptions())
}

// driveOperation polls the operation to a terminal status and prints its
// result. The returned outcome is non-nil when the server reported Failed or
// Canceled.
func (r *runner) driveOperation(ctx context.Context) (outcome error, err error) {
	p, err := r.start(ctx)
	if err != nil {
		return nil, err
	}

	for _, err := range p.Responses(ctx) {
		if err != nil {
			return nil, err
		}
		if r.store == nil {
			continue
		}
		if p.Done() {
			if err := r.store.Delete(ctx, r.cfg.Checkpoint.Name); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to delete checkpoint")
			}
			continue
		}
		token, err := p.ResumeToken()
		if err != nil {
			return nil, fmt.Errorf("resume token: %w", err)
		}
		if err := r.store.SaveResumeToken(ctx, r.cfg.Checkpoint.Name, token, p.Polls()); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
	}

	result, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("status", string(p.Status())).
		Int("polls", p.Polls()).
		Msg("Operation finished")

	if len(result) > 0 {
		if err := r.out.Encode(result); err != nil {
			return nil, fmt.Errorf("write result: %w", err)
		}
	}
	return p.Outcome(), nil
}
