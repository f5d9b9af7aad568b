package api

import (
	"io"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Column      string `json:"column"`
	Order       *int   `json:"order"`
}

type moveTaskRequest struct {
	Column string `json:"column"`
	Order  int    `json:"order"`
}

type reorderRequest struct {
	Entries []domain.OrderAssignment `json:"entries"`
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid request body"}
	}
	return nil
}

func parseColumn(raw string) (domain.Column, error) {
	col := domain.Column(raw)
	if !col.Valid() {
		return "", &domain.ValidationError{Field: "column", Reason: "unknown column"}
	}
	return col, nil
}

func parseTaskID(raw string) (string, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return "", &domain.ValidationError{Field: "id", Reason: "must be a valid task id"}
	}
	return raw, nil
}
