package domain

import "github.com/bytedance/sonic"

// Board event types published to the events queue.
const (
	EventTaskCreated     = "task-created"
	EventTaskMoved       = "task-moved"
	EventTaskDeleted     = "task-deleted"
	EventColumnReordered = "column-reordered"
)

// BoardEvent notifies downstream consumers of a completed board mutation.
type BoardEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	TaskID    string                 `json:"taskId,omitempty"`
	Column    Column                 `json:"column,omitempty"`
	Data      sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
