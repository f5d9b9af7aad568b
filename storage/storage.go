package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskboard-api/domain"
)

// Store persists tasks in Azure Table Storage and publishes board events to
// an Azure Queue. Tasks are keyed PartitionKey = column, RowKey = task id, so
// a column listing is a single-partition scan and every write is atomic at
// the entity level.
type Store struct {
	tasks            *aztables.Client
	events           messageEnqueuer
	queueConcurrency int
}

// New creates a Store from the given connection string.
func New(connStr, tasksTable, eventsQueue string) (*Store, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Store{
		tasks:            svc.NewClient(tasksTable),
		events:           queueEnqueuer{client: eq},
		queueConcurrency: queueConcurrencyForCPU(runtime.NumCPU()),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	OdataETag     string `json:"odata.etag,omitempty"`
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Order         int    `json:"Order"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type taskEntityUpdate struct {
	aztables.Entity
	Title         *string `json:"Title,omitempty"`
	Description   *string `json:"Description,omitempty"`
	Order         *int    `json:"Order,omitempty"`
	UpdatedAt     *int64  `json:"UpdatedAt,omitempty,string"`
	UpdatedAtType *string `json:"UpdatedAt@odata.type,omitempty"`
}

const edmInt64 = "Edm.Int64"

func encodeTaskEntity(t domain.Task) taskEntity {
	return taskEntity{
		Entity:        aztables.Entity{PartitionKey: string(t.Column), RowKey: t.ID},
		Title:         t.Title,
		Description:   t.Description,
		Order:         t.Order,
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Column:      domain.Column(ent.PartitionKey),
		Order:       ent.Order,
		CreatedAt:   time.Unix(0, ent.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, ent.UpdatedAt).UTC(),
		ETag:        ent.OdataETag,
	}, nil
}

// GetTask looks a task up by id across all column partitions. Returns nil
// when no row matches.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	filter := "RowKey eq '" + id + "'"
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStoreErr("get task", err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			return &t, nil
		}
	}
	return nil, nil
}

// ListColumn returns every task in the column in ascending order.
func (s *Store) ListColumn(ctx context.Context, col domain.Column) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + string(col) + "'"
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStoreErr("list column", err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	return tasks, nil
}

// InsertTask creates a new task row.
func (s *Store) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(encodeTaskEntity(t))
	if err != nil {
		return err
	}
	if _, err := s.tasks.AddEntity(ctx, payload, nil); err != nil {
		return mapStoreErr("insert task", err)
	}
	return nil
}

// UpdateTask merges the partial update into the stored row. When the update
// carries an ETag the write is conditional on it, so an interleaved writer
// surfaces as ErrConflict instead of being silently overwritten.
func (s *Store) UpdateTask(ctx context.Context, upd domain.TaskUpdate) error {
	ent := taskEntityUpdate{
		Entity:      aztables.Entity{PartitionKey: string(upd.Column), RowKey: upd.ID},
		Title:       upd.Title,
		Description: upd.Description,
		Order:       upd.Order,
	}
	if !upd.UpdatedAt.IsZero() {
		ns := upd.UpdatedAt.UnixNano()
		typ := edmInt64
		ent.UpdatedAt = &ns
		ent.UpdatedAtType = &typ
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	ifMatch := azcore.ETagAny
	if upd.ETag != "" {
		ifMatch = azcore.ETag(upd.ETag)
	}
	opts := &aztables.UpdateEntityOptions{IfMatch: &ifMatch, UpdateMode: aztables.UpdateModeMerge}
	if _, err := s.tasks.UpdateEntity(ctx, payload, opts); err != nil {
		return mapStoreErr("update task", err)
	}
	return nil
}

// MoveTask writes the task under its new column partition, then removes the
// old row. Both per-column layouts must already be shifted by the caller; if
// the delete fails the moved task is transiently present in both partitions
// and the error is surfaced for the caller to retry.
func (s *Store) MoveTask(ctx context.Context, t domain.Task, from domain.Column) error {
	payload, err := json.Marshal(encodeTaskEntity(t))
	if err != nil {
		return err
	}
	if _, err := s.tasks.AddEntity(ctx, payload, nil); err != nil {
		return mapStoreErr("move task", err)
	}
	if _, err := s.tasks.DeleteEntity(ctx, string(from), t.ID, nil); err != nil {
		return mapStoreErr("move task", err)
	}
	return nil
}

// DeleteTask removes the task row.
func (s *Store) DeleteTask(ctx context.Context, id string, col domain.Column) error {
	if _, err := s.tasks.DeleteEntity(ctx, string(col), id, nil); err != nil {
		return mapStoreErr("delete task", err)
	}
	return nil
}

// mapStoreErr translates Azure responses into the domain error taxonomy.
func mapStoreErr(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return domain.ErrNotFound
		case http.StatusConflict, http.StatusPreconditionFailed:
			return domain.ErrConflict
		}
	}
	return &domain.StoreError{Op: op, Err: err}
}
