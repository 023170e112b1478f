package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// Cache stores analysis results by content hash.
type Cache interface {
	Get(ctx context.Context, key string) (pricing.AnalysisResult, bool, error)
	Set(ctx context.Context, key string, result pricing.AnalysisResult) error
}

// Cached memoizes an Analyzer. Identical uploads are analyzed once; cache
// errors only degrade to a direct call.
type Cached struct {
	next   Analyzer
	cache  Cache
	logger *zap.Logger
}

func NewCached(next Analyzer, cache Cache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: cache, logger: logger}
}

func (c *Cached) Analyze(ctx context.Context, filename string, data []byte) (pricing.AnalysisResult, error) {
	key := CacheKey(data)

	result, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("analysis cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return result, nil
	}

	result, err = c.next.Analyze(ctx, filename, data)
	if err != nil {
		return pricing.AnalysisResult{}, err
	}

	if err := c.cache.Set(ctx, key, result); err != nil {
		c.logger.Warn("analysis cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// CacheKey identifies an upload by the sha256 of its bytes.
func CacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "analysis:" + hex.EncodeToString(sum[:])
}

// RedisCache keeps results in Redis as JSON with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (pricing.AnalysisResult, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return pricing.AnalysisResult{}, false, nil
	}
	if err != nil {
		return pricing.AnalysisResult{}, false, fmt.Errorf("redis get: %w", err)
	}

	var result pricing.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return pricing.AnalysisResult{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, result pricing.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (pricing.AnalysisResult, bool, error) {
	return pricing.AnalysisResult{}, false, nil
}

func (NopCache) Set(context.Context, string, pricing.AnalysisResult) error {
	return nil
}
