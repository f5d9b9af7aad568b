package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type stubLister struct {
	calls map[domain.Column]int
	fn    func(ctx context.Context, col domain.Column) ([]domain.Task, error)
}

func (s *stubLister) ListColumn(ctx context.Context, col domain.Column) ([]domain.Task, error) {
	if s.calls == nil {
		s.calls = map[domain.Column]int{}
	}
	s.calls[col]++
	if s.fn == nil {
		return nil, errors.New("unexpected ListColumn call")
	}
	return s.fn(ctx, col)
}

func newTestCache(t *testing.T, base columnLister, ttl time.Duration) (*BoardCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewBoardCache(base, client, ttl), mr
}

func TestBoardCacheMissThenHit(t *testing.T) {
	expected := []domain.Task{{ID: "t1", Title: "Write code", Column: domain.ColumnTodo, Order: 1}}
	base := &stubLister{fn: func(ctx context.Context, col domain.Column) ([]domain.Task, error) {
		return expected, nil
	}}
	cache, _ := newTestCache(t, base, time.Minute)
	ctx := context.Background()

	got, err := cache.ListColumn(ctx, domain.ColumnTodo)
	if err != nil {
		t.Fatalf("miss: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %+v", got)
	}

	got, err = cache.ListColumn(ctx, domain.ColumnTodo)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("unexpected cached tasks: %+v", got)
	}
	if base.calls[domain.ColumnTodo] != 1 {
		t.Fatalf("expected a single backing call, got %d", base.calls[domain.ColumnTodo])
	}
}

func TestBoardCacheEvictForcesRefetch(t *testing.T) {
	base := &stubLister{fn: func(ctx context.Context, col domain.Column) ([]domain.Task, error) {
		return []domain.Task{}, nil
	}}
	cache, mr := newTestCache(t, base, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListColumn(ctx, domain.ColumnTodo); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if !mr.Exists(columnCacheKey(domain.ColumnTodo)) {
		t.Fatalf("expected cache entry after prime")
	}

	cache.Evict(ctx, domain.ColumnTodo)
	if mr.Exists(columnCacheKey(domain.ColumnTodo)) {
		t.Fatalf("expected cache entry to be evicted")
	}

	if _, err := cache.ListColumn(ctx, domain.ColumnTodo); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if base.calls[domain.ColumnTodo] != 2 {
		t.Fatalf("expected refetch after eviction, got %d calls", base.calls[domain.ColumnTodo])
	}
}

func TestBoardCacheCorruptedEntryFallsBack(t *testing.T) {
	base := &stubLister{fn: func(ctx context.Context, col domain.Column) ([]domain.Task, error) {
		return []domain.Task{{ID: "t2", Column: col, Order: 1}}, nil
	}}
	cache, mr := newTestCache(t, base, time.Minute)
	ctx := context.Background()

	if err := mr.Set(columnCacheKey(domain.ColumnTodo), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	got, err := cache.ListColumn(ctx, domain.ColumnTodo)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t2" {
		t.Fatalf("unexpected tasks: %+v", got)
	}
	if base.calls[domain.ColumnTodo] != 1 {
		t.Fatalf("expected fallback to backing store")
	}
}

func TestBoardCacheZeroTTLDisablesCaching(t *testing.T) {
	base := &stubLister{fn: func(ctx context.Context, col domain.Column) ([]domain.Task, error) {
		return []domain.Task{}, nil
	}}
	cache, mr := newTestCache(t, base, 0)
	ctx := context.Background()

	if _, err := cache.ListColumn(ctx, domain.ColumnTodo); err != nil {
		t.Fatalf("list: %v", err)
	}
	if mr.Exists(columnCacheKey(domain.ColumnTodo)) {
		t.Fatalf("expected no cache entry with zero ttl")
	}
}

func TestBoardCacheFetchBoardCoversAllColumns(t *testing.T) {
	base := &stubLister{fn: func(ctx context.Context, col domain.Column) ([]domain.Task, error) {
		return []domain.Task{{ID: string(col) + "-1", Column: col, Order: 1}}, nil
	}}
	cache, _ := newTestCache(t, base, time.Minute)

	board, err := cache.FetchBoard(context.Background())
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if len(board) != len(domain.Columns) {
		t.Fatalf("expected %d columns, got %d", len(domain.Columns), len(board))
	}
	for _, col := range domain.Columns {
		if len(board[col]) != 1 || board[col][0].Column != col {
			t.Fatalf("unexpected column %s: %+v", col, board[col])
		}
	}
}
