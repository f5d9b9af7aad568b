package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const (
	defaultLockTTL   = 10 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// ColumnLock serializes order-space mutations through per-column Redis
// leases. Columns are always acquired in lexical order so two operations
// locking overlapping column sets cannot deadlock. The lease TTL bounds how
// long a crashed holder can block a column.
type ColumnLock struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewColumnLock creates a ColumnLock with the given lease TTL.
func NewColumnLock(client *redis.Client, ttl time.Duration) *ColumnLock {
	if client == nil {
		panic("storage.NewColumnLock: redis client is nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &ColumnLock{client: client, ttl: ttl, retry: lockRetryBackoff}
}

func columnLockKey(col domain.Column) string {
	return "columnlock:" + string(col)
}

// unlockScript releases a lease only when it is still held by the caller.
var unlockScript = redis.NewScript(
	`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`,
)

// LockColumns blocks until every requested column lease is held or ctx
// expires. The returned release function is idempotent.
func (l *ColumnLock) LockColumns(ctx context.Context, cols ...domain.Column) (func(), error) {
	sorted := append([]domain.Column(nil), cols...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	token := uuid.NewString()
	held := make([]string, 0, len(sorted))
	releaseHeld := func() {
		for _, key := range held {
			l.releaseKey(key, token)
		}
	}

	for _, col := range sorted {
		key := columnLockKey(col)
		if err := l.acquire(ctx, key, token); err != nil {
			releaseHeld()
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *ColumnLock) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return &domain.StoreError{Op: "acquire column lock", Err: err}
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *ColumnLock) releaseKey(key, token string) {
	// Release outlives the caller's ctx so a cancelled request still frees
	// its leases.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		log.WithError(err).WithField("key", key).Warn("column lock release failed")
	}
}
