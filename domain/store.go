package domain

import (
	"context"
	"time"
)

// TaskStore defines the persistence primitives the ordering engine operates
// on. Implementations must make each single call atomic; the engine never
// relies on multi-call transactions.
type TaskStore interface {
	// GetTask returns the task with the given id, or nil when absent.
	GetTask(ctx context.Context, id string) (*Task, error)
	// ListColumn returns every task in the column in ascending order.
	ListColumn(ctx context.Context, col Column) ([]Task, error)
	// InsertTask persists a new task. ErrConflict when the id already exists.
	InsertTask(ctx context.Context, t Task) error
	// UpdateTask merges the partial update into the stored task. ErrNotFound
	// when the row is gone, ErrConflict when the ETag no longer matches.
	UpdateTask(ctx context.Context, upd TaskUpdate) error
	// MoveTask rewrites the task under its new column, then removes the row
	// it previously occupied in from.
	MoveTask(ctx context.Context, t Task, from Column) error
	// DeleteTask removes the task row. ErrNotFound when absent.
	DeleteTask(ctx context.Context, id string, col Column) error
}

// TaskUpdate carries a partial update for a stored task. Nil fields are left
// untouched.
type TaskUpdate struct {
	ID          string
	Column      Column
	Title       *string
	Description *string
	Order       *int
	UpdatedAt   time.Time

	// ETag, when set, makes the write conditional on the stored version.
	ETag string
}

// ColumnLocker serializes order-space mutations per column. LockColumns
// blocks until every requested column lease is held or ctx expires; the
// returned release function frees all of them.
type ColumnLocker interface {
	LockColumns(ctx context.Context, cols ...Column) (release func(), err error)
}
