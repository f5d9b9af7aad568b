package domain

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Engine implements the board's ordering algorithms against a TaskStore. It
// holds no state between calls: each operation reads the current column
// layout under the column lease, computes the target layout and issues the
// minimal writes to reach it. Orders within a column stay unique and dense
// after every completed operation.
type Engine struct {
	store TaskStore
	locks ColumnLocker
}

// NewEngine creates an Engine over the given store and column locker.
func NewEngine(store TaskStore, locks ColumnLocker) *Engine {
	if store == nil {
		panic("domain.NewEngine: store is nil")
	}
	if locks == nil {
		panic("domain.NewEngine: locker is nil")
	}
	return &Engine{store: store, locks: locks}
}

// NextOrder returns the smallest positive order strictly greater than every
// existing order in the column: max+1, or 1 for an empty column. Read only.
func (e *Engine) NextOrder(ctx context.Context, col Column) (int, error) {
	if !col.Valid() {
		return 0, &ValidationError{Field: "column", Reason: "unknown column"}
	}
	tasks, err := e.store.ListColumn(ctx, col)
	if err != nil {
		return 0, err
	}
	return maxOrder(tasks) + 1, nil
}

// Insert creates a task from the draft. Without an explicit order the task is
// appended after the column's current maximum. With an explicit order k every
// task at k or beyond is shifted up by one before the new row is written, so
// uniqueness holds at every observable point. Orders beyond the column length
// are accepted as a new maximum.
func (e *Engine) Insert(ctx context.Context, draft TaskDraft) (Task, error) {
	if err := draft.Validate(); err != nil {
		return Task{}, err
	}

	release, err := e.locks.LockColumns(ctx, draft.Column)
	if err != nil {
		return Task{}, err
	}
	defer release()

	tasks, err := e.store.ListColumn(ctx, draft.Column)
	if err != nil {
		return Task{}, err
	}

	order := maxOrder(tasks) + 1
	if draft.Order != nil {
		order = *draft.Order
		if err := e.shiftUp(ctx, tasks, order); err != nil {
			return Task{}, err
		}
	}

	now := time.Now().UTC()
	t := Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(draft.Title),
		Description: draft.Description,
		Column:      draft.Column,
		Order:       order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.InsertTask(ctx, t); err != nil {
		return Task{}, err
	}
	log.WithFields(log.Fields{"task": t.ID, "column": t.Column, "order": t.Order}).Debug("task inserted")
	return t, nil
}

// Delete removes the task and closes the gap it leaves behind: every
// remaining task in the column with a greater order is shifted down by one.
func (e *Engine) Delete(ctx context.Context, id string) error {
	t, err := e.lockTask(ctx, id, nil)
	if err != nil {
		return err
	}
	defer t.release()

	if err := e.store.DeleteTask(ctx, t.ID, t.Column); err != nil {
		return err
	}

	rest, err := e.store.ListColumn(ctx, t.Column)
	if err != nil {
		return err
	}
	for _, other := range rest {
		if other.Order <= t.Order {
			continue
		}
		if err := e.setOrder(ctx, other, other.Order-1); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{"task": t.ID, "column": t.Column}).Debug("task deleted")
	return nil
}

// Move relocates the task to targetOrder in target. Within its current column
// this rotates the contiguous range between the old and new position by one
// slot; across columns the source gap is closed, the target slot opened, and
// only then is the moved task committed under its new identity.
func (e *Engine) Move(ctx context.Context, id string, target Column, targetOrder int) (Task, error) {
	if !target.Valid() {
		return Task{}, &ValidationError{Field: "column", Reason: "unknown column"}
	}
	if targetOrder < 1 {
		return Task{}, &ValidationError{Field: "order", Reason: "must be a positive integer"}
	}

	t, err := e.lockTask(ctx, id, &target)
	if err != nil {
		return Task{}, err
	}
	defer t.release()

	if t.Column == target {
		return e.moveWithin(ctx, t.Task, targetOrder)
	}
	return e.moveAcross(ctx, t.Task, target, targetOrder)
}

func (e *Engine) moveWithin(ctx context.Context, t Task, n int) (Task, error) {
	o := t.Order
	if n == o {
		return t, nil
	}

	tasks, err := e.store.ListColumn(ctx, t.Column)
	if err != nil {
		return Task{}, err
	}

	if n < o {
		// Moving earlier: make room by shifting [n, o) up, highest first.
		for i := len(tasks) - 1; i >= 0; i-- {
			other := tasks[i]
			if other.Order >= o || other.Order < n {
				continue
			}
			if err := e.setOrder(ctx, other, other.Order+1); err != nil {
				return Task{}, err
			}
		}
	} else {
		// Moving later: close the gap by shifting (o, n] down, lowest first.
		for _, other := range tasks {
			if other.Order <= o || other.Order > n {
				continue
			}
			if err := e.setOrder(ctx, other, other.Order-1); err != nil {
				return Task{}, err
			}
		}
	}

	now := time.Now().UTC()
	upd := TaskUpdate{ID: t.ID, Column: t.Column, Order: &n, UpdatedAt: now, ETag: t.ETag}
	if err := e.store.UpdateTask(ctx, upd); err != nil {
		return Task{}, err
	}
	t.Order = n
	t.UpdatedAt = now
	log.WithFields(log.Fields{"task": t.ID, "column": t.Column, "from": o, "to": n}).Debug("task moved within column")
	return t, nil
}

func (e *Engine) moveAcross(ctx context.Context, t Task, target Column, n int) (Task, error) {
	source, err := e.store.ListColumn(ctx, t.Column)
	if err != nil {
		return Task{}, err
	}
	// Close the gap the task leaves behind in its source column.
	for _, other := range source {
		if other.ID == t.ID || other.Order <= t.Order {
			continue
		}
		if err := e.setOrder(ctx, other, other.Order-1); err != nil {
			return Task{}, err
		}
	}

	dest, err := e.store.ListColumn(ctx, target)
	if err != nil {
		return Task{}, err
	}
	if err := e.shiftUp(ctx, dest, n); err != nil {
		return Task{}, err
	}

	moved := t
	moved.Column = target
	moved.Order = n
	moved.UpdatedAt = time.Now().UTC()
	if err := e.store.MoveTask(ctx, moved, t.Column); err != nil {
		return Task{}, err
	}
	log.WithFields(log.Fields{"task": t.ID, "from": t.Column, "to": target, "order": n}).Debug("task moved across columns")
	return moved, nil
}

// OrderAssignment pairs a task with its new order for a bulk reorder.
type OrderAssignment struct {
	TaskID string `json:"taskId"`
	Order  int    `json:"order"`
}

// BulkReorder applies each assignment independently and unconditionally, with
// no shifting of unlisted tasks. Entries are validated for shape only; the
// caller owns supplying a collision-free permutation, and a failure mid-batch
// leaves earlier assignments applied. Returns the column's tasks afterwards.
func (e *Engine) BulkReorder(ctx context.Context, col Column, entries []OrderAssignment) ([]Task, error) {
	if !col.Valid() {
		return nil, &ValidationError{Field: "column", Reason: "unknown column"}
	}
	for _, entry := range entries {
		if entry.TaskID == "" {
			return nil, &ValidationError{Field: "taskId", Reason: "must not be empty"}
		}
		if entry.Order < 1 {
			return nil, &ValidationError{Field: "order", Reason: "must be a positive integer"}
		}
	}

	release, err := e.locks.LockColumns(ctx, col)
	if err != nil {
		return nil, err
	}
	defer release()

	tasks, err := e.store.ListColumn(ctx, col)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, entry := range entries {
		t, ok := byID[entry.TaskID]
		if !ok {
			return nil, ErrNotFound
		}
		if t.Order == entry.Order {
			continue
		}
		if err := e.setOrder(ctx, t, entry.Order); err != nil {
			return nil, err
		}
	}

	out, err := e.store.ListColumn(ctx, col)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// lockedTask couples a task snapshot taken under its column lease with the
// release function for that lease.
type lockedTask struct {
	Task
	release func()
}

// lockTask looks the task up, takes the lease for its column (and extra, when
// given) and re-reads under the lease. When the task switched columns between
// the lookup and the lease the lease is wrong, so it retries.
func (e *Engine) lockTask(ctx context.Context, id string, extra *Column) (lockedTask, error) {
	for {
		t, err := e.store.GetTask(ctx, id)
		if err != nil {
			return lockedTask{}, err
		}
		if t == nil {
			return lockedTask{}, ErrNotFound
		}

		cols := []Column{t.Column}
		if extra != nil && *extra != t.Column {
			cols = append(cols, *extra)
		}
		release, err := e.locks.LockColumns(ctx, cols...)
		if err != nil {
			return lockedTask{}, err
		}

		cur, err := e.store.GetTask(ctx, id)
		if err != nil {
			release()
			return lockedTask{}, err
		}
		if cur == nil {
			release()
			return lockedTask{}, ErrNotFound
		}
		if cur.Column != t.Column {
			release()
			continue
		}
		return lockedTask{Task: *cur, release: release}, nil
	}
}

// shiftUp increments every order >= from by one, applied highest first so no
// two tasks ever share an order mid-shift.
func (e *Engine) shiftUp(ctx context.Context, tasks []Task, from int) error {
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		if t.Order < from {
			break
		}
		if err := e.setOrder(ctx, t, t.Order+1); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setOrder(ctx context.Context, t Task, order int) error {
	upd := TaskUpdate{
		ID:        t.ID,
		Column:    t.Column,
		Order:     &order,
		UpdatedAt: time.Now().UTC(),
		ETag:      t.ETag,
	}
	return e.store.UpdateTask(ctx, upd)
}

func maxOrder(tasks []Task) int {
	max := 0
	for _, t := range tasks {
		if t.Order > max {
			max = t.Order
		}
	}
	return max
}
