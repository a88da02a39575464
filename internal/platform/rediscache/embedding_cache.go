package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

// EmbeddingCache memoizes query embeddings so repeated or retried
// questions skip the embedding round trip. A nil cache is valid and
// means "always miss".
type EmbeddingCache struct {
	log *logger.Logger
	rdb *redis.Client
	ttl time.Duration
}

func NewEmbeddingCache(log *logger.Logger) (*EmbeddingCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EmbeddingCache{
		log: log.With("service", "EmbeddingCache"),
		rdb: rdb,
		ttl: 24 * time.Hour,
	}, nil
}

func cacheKey(model, query string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strings.TrimSpace(query)))
	return "amparo:emb:" + hex.EncodeToString(sum[:])
}

func (c *EmbeddingCache) Get(ctx context.Context, model, query string) ([]float32, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(model, query)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) Put(ctx context.Context, model, query string, vec []float32) {
	if c == nil || c.rdb == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(model, query), raw, c.ttl).Err(); err != nil {
		c.log.Warn("embedding cache write failed (continuing)", "error", err)
	}
}

func (c *EmbeddingCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
