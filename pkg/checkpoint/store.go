// Package checkpoint persists pager continuation markers and poller resume
// tokens in Redis so that a listing or a long-running operation can be picked
// up by a later process.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for checkpoint operations.
var (
	checkpointWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_checkpoint_writes_total",
		Help: "Total checkpoints written by kind",
	}, []string{"kind"})

	checkpointErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_checkpoint_errors_total",
		Help: "Total checkpoint store errors by operation",
	}, []string{"operation"})
)

// Redis hash fields.
const (
	fieldKind        = "kind"
	fieldMarker      = "marker"
	fieldResumeToken = "resume_token"
	fieldItems       = "items"
	fieldPages       = "pages"
	fieldPolls       = "polls"
	fieldUpdatedAt   = "updated_at"
)

// DefaultPrefix namespaces checkpoint keys.
const DefaultPrefix = "clientrt:checkpoint"

var (
	// ErrNotFound is returned when no checkpoint exists under a name.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrKindMismatch is returned when a checkpoint exists but belongs to the
	// other kind of work.
	ErrKindMismatch = errors.New("checkpoint kind mismatch")
)

// Kind distinguishes listing checkpoints from operation checkpoints.
type Kind string

const (
	KindListing   Kind = "listing"
	KindOperation Kind = "operation"
)

// Checkpoint is the saved position of one listing or operation.
type Checkpoint struct {
	Name string
	Kind Kind

	// Marker is the continuation marker of a listing.
	Marker fetch.Marker

	// ResumeToken is the poller token of an operation.
	ResumeToken string

	// Items and Pages count listing progress made before the checkpoint.
	Items int
	Pages int

	// Polls counts status checks issued for an operation.
	Polls int

	UpdatedAt time.Time
}

// Config holds the store configuration.
type Config struct {
	// Prefix for all keys. Defaults to DefaultPrefix.
	Prefix string

	// TTL expires checkpoints that are not updated. Zero keeps them forever.
	TTL time.Duration
}

// Store reads and writes checkpoints in Redis.
type Store struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// NewStore creates a new checkpoint store.
func NewStore(redisClient *redis.Client, cfg Config, logger zerolog.Logger) (*Store, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("ttl must be >= 0 (got %s)", cfg.TTL)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Store{
		redis:  redisClient,
		config: cfg,
		logger: logger.With().Str("component", "checkpoint").Logger(),
	}, nil
}

func (s *Store) key(name string) string {
	return s.config.Prefix + ":" + name
}

// Save writes cp, replacing any previous checkpoint with the same name.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	if cp.Name == "" {
		return fmt.Errorf("checkpoint name is required")
	}
	if cp.Kind != KindListing && cp.Kind != KindOperation {
		return fmt.Errorf("unknown checkpoint kind %q", cp.Kind)
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	key := s.key(cp.Name)

	// Replace the hash atomically
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldKind, string(cp.Kind),
		fieldMarker, cp.Marker.String(),
		fieldResumeToken, cp.ResumeToken,
		fieldItems, cp.Items,
		fieldPages, cp.Pages,
		fieldPolls, cp.Polls,
		fieldUpdatedAt, cp.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, key, s.config.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		checkpointErrorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("store checkpoint in redis: %w", err)
	}

	checkpointWritesTotal.WithLabelValues(string(cp.Kind)).Inc()

	s.logger.Debug().
		Str("name", cp.Name).
		Str("kind", string(cp.Kind)).
		Int("items", cp.Items).
		Msg("Checkpoint saved")

	return nil
}

// Load reads the checkpoint stored under name.
func (s *Store) Load(ctx context.Context, name string) (Checkpoint, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		checkpointErrorsTotal.WithLabelValues("load").Inc()
		return Checkpoint{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return Checkpoint{}, ErrNotFound
	}

	cp, err := decode(name, fields)
	if err != nil {
		checkpointErrorsTotal.WithLabelValues("load").Inc()
		return Checkpoint{}, err
	}
	return cp, nil
}

func decode(name string, fields map[string]string) (Checkpoint, error) {
	cp := Checkpoint{
		Name:        name,
		Kind:        Kind(fields[fieldKind]),
		ResumeToken: fields[fieldResumeToken],
	}

	marker, err := fetch.ParseMarker(fields[fieldMarker])
	if err != nil {
		return cp, fmt.Errorf("decode checkpoint %q: %w", name, err)
	}
	cp.Marker = marker

	if v := fields[fieldItems]; v != "" {
		if cp.Items, err = strconv.Atoi(v); err != nil {
			return cp, fmt.Errorf("decode checkpoint %q items: %w", name, err)
		}
	}
	if v := fields[fieldPages]; v != "" {
		if cp.Pages, err = strconv.Atoi(v); err != nil {
			return cp, fmt.Errorf("decode checkpoint %q pages: %w", name, err)
		}
	}
	if v := fields[fieldPolls]; v != "" {
		if cp.Polls, err = strconv.Atoi(v); err != nil {
			return cp, fmt.Errorf("decode checkpoint %q polls: %w", name, err)
		}
	}
	if v := fields[fieldUpdatedAt]; v != "" {
		if cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return cp, fmt.Errorf("decode checkpoint %q updated_at: %w", name, err)
		}
	}
	return cp, nil
}

// SaveMarker records the continuation marker of a listing.
func (s *Store) SaveMarker(ctx context.Context, name string, marker fetch.Marker, items, pages int) error {
	return s.Save(ctx, Checkpoint{
		Name:   name,
		Kind:   KindListing,
		Marker: marker,
		Items:  items,
		Pages:  pages,
	})
}

// LoadMarker returns the saved marker of a listing. An absent marker means
// the listing previously ran to completion.
func (s *Store) LoadMarker(ctx context.Context, name string) (Checkpoint, error) {
	cp, err := s.Load(ctx, name)
	if err != nil {
		return cp, err
	}
	if cp.Kind != KindListing {
		return cp, fmt.Errorf("%w: %q is a %s checkpoint", ErrKindMismatch, name, cp.Kind)
	}
	return cp, nil
}

// SaveResumeToken records the resume token of an operation.
func (s *Store) SaveResumeToken(ctx context.Context, name, token string, polls int) error {
	return s.Save(ctx, Checkpoint{
		Name:        name,
		Kind:        KindOperation,
		ResumeToken: token,
		Polls:       polls,
	})
}

// LoadResumeToken returns the saved resume token of an operation.
func (s *Store) LoadResumeToken(ctx context.Context, name string) (string, error) {
	cp, err := s.Load(ctx, name)
	if err != nil {
		return "", err
	}
	if cp.Kind != KindOperation {
		return "", fmt.Errorf("%w: %q is a %s checkpoint", ErrKindMismatch, name, cp.Kind)
	}
	return cp.ResumeToken, nil
}

// Delete removes a checkpoint. Deleting a missing checkpoint is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.redis.Del(ctx, s.key(name)).Err(); err != nil {
		checkpointErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
