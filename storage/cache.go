package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type columnLister interface {
	ListColumn(ctx context.Context, col domain.Column) ([]domain.Task, error)
}

// BoardCache serves column listings from Redis with a TTL, falling back to
// the table store on miss or any Redis failure. Only the HTTP read path goes
// through the cache; engine reads always hit the table store directly since
// shifting correctness depends on fresh state.
type BoardCache struct {
	base  columnLister
	redis *redis.Client
	ttl   time.Duration
}

// NewBoardCache creates a caching reader over the given store.
func NewBoardCache(base columnLister, client *redis.Client, ttl time.Duration) *BoardCache {
	if base == nil {
		panic("storage.NewBoardCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &BoardCache{base: base, redis: client, ttl: ttl}
}

func columnCacheKey(col domain.Column) string {
	return "board:" + string(col)
}

// ListColumn returns the column's tasks, cached.
func (c *BoardCache) ListColumn(ctx context.Context, col domain.Column) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, col); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListColumn(ctx, col)
	if err != nil {
		return nil, err
	}
	c.store(ctx, col, tasks)
	return tasks, nil
}

// FetchBoard assembles the full board, column by column.
func (c *BoardCache) FetchBoard(ctx context.Context) (map[domain.Column][]domain.Task, error) {
	board := make(map[domain.Column][]domain.Task, len(domain.Columns))
	for _, col := range domain.Columns {
		tasks, err := c.ListColumn(ctx, col)
		if err != nil {
			return nil, err
		}
		board[col] = tasks
	}
	return board, nil
}

// Evict drops the cached listings for the given columns. Best effort; a
// failed eviction only shortens to the TTL.
func (c *BoardCache) Evict(ctx context.Context, cols ...domain.Column) {
	if c.redis == nil || len(cols) == 0 {
		return
	}
	keys := make([]string, len(cols))
	for i, col := range cols {
		keys[i] = columnCacheKey(col)
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *BoardCache) load(ctx context.Context, col domain.Column) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, columnCacheKey(col)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, columnCacheKey(col)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, columnCacheKey(col)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *BoardCache) store(ctx context.Context, col domain.Column, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, columnCacheKey(col), data, c.ttl).Err()
}
