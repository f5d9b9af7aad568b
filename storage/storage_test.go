package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"taskboard-api/domain"
)

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{
		"odata.etag": "W/\"datetime'2026-01-02T03%3A04%3A05Z'\"",
		"PartitionKey": "in-progress",
		"RowKey": "task-1",
		"Title": "Ship the release",
		"Description": "cut and tag",
		"Order": 2,
		"CreatedAt": "1700000000000000000",
		"CreatedAt@odata.type": "Edm.Int64",
		"UpdatedAt": "1700000001000000000",
		"UpdatedAt@odata.type": "Edm.Int64"
	}`)
	task, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "task-1" || task.Column != domain.ColumnInProgress || task.Order != 2 {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Title != "Ship the release" || task.Description != "cut and tag" {
		t.Fatalf("unexpected text fields: %+v", task)
	}
	if task.CreatedAt.UnixNano() != 1700000000000000000 || task.UpdatedAt.UnixNano() != 1700000001000000000 {
		t.Fatalf("unexpected timestamps: %+v", task)
	}
	if task.ETag == "" {
		t.Fatalf("expected etag to be carried through")
	}
}

func TestEncodeTaskEntityRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	in := domain.Task{
		ID:          "task-9",
		Title:       "Review designs",
		Description: "figma link in notes",
		Column:      domain.ColumnTodo,
		Order:       4,
		CreatedAt:   created,
		UpdatedAt:   created.Add(time.Hour),
	}
	payload, err := json.Marshal(encodeTaskEntity(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := decodeTaskEntity(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.Column != in.Column || out.Order != in.Order {
		t.Fatalf("keys did not round trip: %+v", out)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Fatalf("timestamps did not round trip: %+v", out)
	}
}

func TestMapStoreErr(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "not found", status: 404, want: domain.ErrNotFound},
		{name: "conflict", status: 409, want: domain.ErrConflict},
		{name: "precondition failed", status: 412, want: domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapStoreErr("op", &azcore.ResponseError{StatusCode: tt.status})
			if !errors.Is(err, tt.want) {
				t.Fatalf("status %d mapped to %v, want %v", tt.status, err, tt.want)
			}
		})
	}

	cause := errors.New("connection reset")
	err := mapStoreErr("list column", cause)
	var serr *domain.StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}
