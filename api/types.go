package api

import (
	"context"

	"taskboard-api/domain"
)

// Engine is the ordering engine surface the handlers drive.
type Engine interface {
	NextOrder(ctx context.Context, col domain.Column) (int, error)
	Insert(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id string, target domain.Column, order int) (domain.Task, error)
	BulkReorder(ctx context.Context, col domain.Column, entries []domain.OrderAssignment) ([]domain.Task, error)
}

// BoardReader serves the cached read paths.
type BoardReader interface {
	FetchBoard(ctx context.Context) (map[domain.Column][]domain.Task, error)
	ListColumn(ctx context.Context, col domain.Column) ([]domain.Task, error)
	Evict(ctx context.Context, cols ...domain.Column)
}

// EventSink delivers board events to downstream consumers.
type EventSink interface {
	PublishEvents(ctx context.Context, events []domain.BoardEvent) error
}

type boardResponse struct {
	Todo       []domain.Task `json:"todo"`
	InProgress []domain.Task `json:"in-progress"`
	Completed  []domain.Task `json:"completed"`
}

type columnResponse struct {
	Column domain.Column `json:"column"`
	Tasks  []domain.Task `json:"tasks"`
}

type nextOrderResponse struct {
	Column domain.Column `json:"column"`
	Order  int           `json:"order"`
}

type errorResponse struct {
	Error string `json:"error"`
}
