package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inventory-engine/internal/config"
	"inventory-engine/internal/core"
)

const (
	KeyPrefix = "stockengine:"

	DefaultSummaryTTL = 2 * time.Minute
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func summaryKey(productID int) string {
	return fmt.Sprintf("%ssummary:%d", KeyPrefix, productID)
}

// Reporting wraps a ReportingService and caches StockSummary per product.
// Every other query passes straight through.
type Reporting struct {
	core.ReportingService
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewReporting(inner core.ReportingService, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Reporting {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &Reporting{ReportingService: inner, rdb: rdb, ttl: ttl, log: log}
}

func (r *Reporting) StockSummary(ctx context.Context, productID int) (*core.StockSummary, error) {
	key := summaryKey(productID)

	val, err := r.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var s core.StockSummary
		if jsonErr := json.Unmarshal([]byte(val), &s); jsonErr == nil {
			return &s, nil
		}
		r.log.Warn("dropping undecodable summary cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.log.Warn("summary cache read failed", zap.String("key", key), zap.Error(err))
	}

	s, err := r.ReportingService.StockSummary(ctx, productID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(s); err == nil {
		if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.log.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return s, nil
}

// Invalidate drops the cached summaries of the given products.
func (r *Reporting) Invalidate(ctx context.Context, productIDs ...int) {
	if len(productIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, summaryKey(id))
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("summary cache invalidation failed", zap.Ints("product_ids", productIDs), zap.Error(err))
	}
}

// MovementsCommitted implements core.MovementNotifier.
func (r *Reporting) MovementsCommitted(ctx context.Context, movements []core.Movement) {
	r.Invalidate(ctx, movedProducts(movements)...)
}

func movedProducts(movements []core.Movement) []int {
	seen := make(map[int]struct{}, len(movements))
	ids := make([]int, 0, len(movements))
	for _, m := range movements {
		if _, ok := seen[m.ProductID]; ok {
			continue
		}
		seen[m.ProductID] = struct{}{}
		ids = append(ids, m.ProductID)
	}
	return ids
}
