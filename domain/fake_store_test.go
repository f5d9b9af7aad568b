package domain

import (
	"context"
	"sort"
	"strconv"
)

// fakeStore is an in-memory TaskStore with the same observable semantics as
// the table-backed store: per-call atomicity, ascending column listings,
// ETag bumps on every write.
type fakeStore struct {
	tasks map[string]Task
	seq   int

	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]Task{}}
}

func (f *fakeStore) nextETag() string {
	f.seq++
	return "W/" + strconv.Itoa(f.seq)
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (f *fakeStore) ListColumn(ctx context.Context, col Column) ([]Task, error) {
	out := make([]Task, 0)
	for _, t := range f.tasks {
		if t.Column == col {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t Task) error {
	if _, exists := f.tasks[t.ID]; exists {
		return ErrConflict
	}
	t.ETag = f.nextETag()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, upd TaskUpdate) error {
	t, ok := f.tasks[upd.ID]
	if !ok || t.Column != upd.Column {
		return ErrNotFound
	}
	if upd.ETag != "" && upd.ETag != t.ETag {
		return ErrConflict
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Order != nil {
		t.Order = *upd.Order
	}
	t.UpdatedAt = upd.UpdatedAt
	t.ETag = f.nextETag()
	f.tasks[upd.ID] = t
	f.updates++
	return nil
}

func (f *fakeStore) MoveTask(ctx context.Context, t Task, from Column) error {
	old, ok := f.tasks[t.ID]
	if !ok || old.Column != from {
		return ErrNotFound
	}
	t.ETag = f.nextETag()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string, col Column) error {
	t, ok := f.tasks[id]
	if !ok || t.Column != col {
		return ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

// fakeLocker records which columns each operation locked.
type fakeLocker struct {
	calls [][]Column
}

func (l *fakeLocker) LockColumns(ctx context.Context, cols ...Column) (func(), error) {
	call := append([]Column(nil), cols...)
	l.calls = append(l.calls, call)
	return func() {}, nil
}
