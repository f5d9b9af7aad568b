package domain

import (
	"strconv"
	"strings"
	"time"
)

// Column identifies one of the three fixed board lanes.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "in-progress"
	ColumnCompleted  Column = "completed"
)

// Columns lists every valid column in board display order.
var Columns = [...]Column{ColumnTodo, ColumnInProgress, ColumnCompleted}

// Valid reports whether c is a recognized column.
func (c Column) Valid() bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnCompleted:
		return true
	}
	return false
}

// MinTitleLen applies to the title after surrounding whitespace is trimmed.
const MinTitleLen = 5

// Task represents a single board item.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Column      Column    `json:"column"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// ETag carries the storage entity version for optimistic updates.
	ETag string `json:"-"`
}

// TaskDraft carries the caller-supplied fields for a new task. A nil Order
// requests appending at the end of the column.
type TaskDraft struct {
	Title       string
	Description string
	Column      Column
	Order       *int
}

// Validate checks the draft before any store access.
func (d TaskDraft) Validate() error {
	if !d.Column.Valid() {
		return &ValidationError{Field: "column", Reason: "unknown column " + strconv.Quote(string(d.Column))}
	}
	if len(strings.TrimSpace(d.Title)) < MinTitleLen {
		return &ValidationError{Field: "title", Reason: "must be at least 5 characters"}
	}
	if d.Order != nil && *d.Order < 1 {
		return &ValidationError{Field: "order", Reason: "must be a positive integer"}
	}
	return nil
}
