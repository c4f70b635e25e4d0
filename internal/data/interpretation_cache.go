package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/assesskit/reportgen/internal/core"
)

const interpretationKeyPrefix = "reportgen:interpretation:"

// CachedInterpretationRepo wraps an InterpretationRepository with a Redis TTL
// cache. Interpretation content changes rarely but is read once per test
// section of every job, so a short cache removes most of the read load.
// Cache failures degrade to the source repository and are logged, not surfaced.
type CachedInterpretationRepo struct {
	source core.InterpretationRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// CachedInterpretationRepoOptions groups dependencies for CachedInterpretationRepo.
type CachedInterpretationRepoOptions struct {
	Source core.InterpretationRepository
	Client redis.UniversalClient
	TTL    time.Duration
	Logger *slog.Logger
}

// NewCachedInterpretationRepo creates the caching wrapper.
func NewCachedInterpretationRepo(opts CachedInterpretationRepoOptions) (*CachedInterpretationRepo, error) {
	if opts.Source == nil {
		return nil, errors.New("source interpretation repository is required")
	}
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedInterpretationRepo{
		source: opts.Source,
		client: opts.Client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetByTestType returns the cached interpretation payload, falling back to the
// source repository on miss or cache error.
func (r *CachedInterpretationRepo) GetByTestType(ctx context.Context, testType string) (json.RawMessage, error) {
	if testType == "" {
		return nil, errors.New("test type cannot be empty")
	}

	key := interpretationKeyPrefix + testType

	cached, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil && len(cached) > 0:
		return cloneJSON(cached), nil
	case err != nil && !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "interpretation cache read failed", "test_type", testType, "error", err)
	}

	content, err := r.source.GetByTestType(ctx, testType)
	if err != nil {
		return nil, err
	}

	if setErr := r.client.Set(ctx, key, []byte(content), r.ttl).Err(); setErr != nil {
		r.logger.WarnContext(ctx, "interpretation cache write failed", "test_type", testType, "error", setErr)
	}

	return content, nil
}

// Invalidate removes the cached payload for a test type.
func (r *CachedInterpretationRepo) Invalidate(ctx context.Context, testType string) error {
	if testType == "" {
		return errors.New("test type cannot be empty")
	}
	if err := r.client.Del(ctx, interpretationKeyPrefix+testType).Err(); err != nil {
		return fmt.Errorf("invalidate interpretation cache: %w", err)
	}
	return nil
}
