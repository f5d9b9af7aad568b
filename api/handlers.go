package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, engine Engine, board BoardReader, sink EventSink, logger *log.Logger) {
	e.GET("/api/tasks", getBoard(board))
	e.POST("/api/tasks", createTask(engine, board, sink, logger))
	e.POST("/api/tasks/:id/move", moveTask(engine, board, sink, logger))
	e.DELETE("/api/tasks/:id", deleteTask(engine, board, sink, logger))
	e.GET("/api/columns/:column", getColumn(board))
	e.GET("/api/columns/:column/next-order", getNextOrder(engine))
	e.POST("/api/columns/:column/reorder", reorderColumn(engine, board, sink, logger))
	e.GET("/healthz", healthz())

	initEventPublisher(sink, logger)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(board BoardReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		columns, err := board.FetchBoard(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, boardResponse{
			Todo:       orEmpty(columns[domain.ColumnTodo]),
			InProgress: orEmpty(columns[domain.ColumnInProgress]),
			Completed:  orEmpty(columns[domain.ColumnCompleted]),
		})
	}
}

func getColumn(board BoardReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		col, err := parseColumn(c.Param("column"))
		if err != nil {
			return writeError(c, err)
		}
		tasks, err := board.ListColumn(c.Request().Context(), col)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, columnResponse{Column: col, Tasks: orEmpty(tasks)})
	}
}

func getNextOrder(engine Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		col, err := parseColumn(c.Param("column"))
		if err != nil {
			return writeError(c, err)
		}
		order, err := engine.NextOrder(c.Request().Context(), col)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, nextOrderResponse{Column: col, Order: order})
	}
}

func createTask(engine Engine, board BoardReader, sink EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/tasks")
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		validateStart := time.Now()
		var req createTaskRequest
		if derr := decodeBody(c, &req); derr != nil {
			metrics.SetErrorStage("decode")
			err = writeError(c, derr)
			return err
		}
		draft := domain.TaskDraft{
			Title:       req.Title,
			Description: req.Description,
			Column:      domain.Column(req.Column),
			Order:       req.Order,
		}
		if verr := draft.Validate(); verr != nil {
			metrics.SetErrorStage("validate")
			err = writeError(c, verr)
			return err
		}
		metrics.ObserveValidate(time.Since(validateStart))

		engineStart := time.Now()
		created, ierr := engine.Insert(ctx, draft)
		metrics.ObserveEngine(time.Since(engineStart))
		if ierr != nil {
			metrics.SetErrorStage("engine")
			err = writeError(c, ierr)
			return err
		}
		metrics.SetTasksTouched(1)

		board.Evict(ctx, created.Column)
		publishAsync(c, sink, taskEvent(domain.EventTaskCreated, created))

		encodeStart := time.Now()
		err = c.JSON(http.StatusCreated, created)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode")
		}
		return err
	}
}

func moveTask(engine Engine, board BoardReader, sink EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/tasks/:id/move")
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		validateStart := time.Now()
		id, perr := parseTaskID(c.Param("id"))
		if perr != nil {
			metrics.SetErrorStage("validate")
			err = writeError(c, perr)
			return err
		}
		var req moveTaskRequest
		if derr := decodeBody(c, &req); derr != nil {
			metrics.SetErrorStage("decode")
			err = writeError(c, derr)
			return err
		}
		col, cerr := parseColumn(req.Column)
		if cerr != nil {
			metrics.SetErrorStage("validate")
			err = writeError(c, cerr)
			return err
		}
		if req.Order < 1 {
			metrics.SetErrorStage("validate")
			err = writeError(c, &domain.ValidationError{Field: "order", Reason: "must be a positive integer"})
			return err
		}
		metrics.ObserveValidate(time.Since(validateStart))

		engineStart := time.Now()
		moved, merr := engine.Move(ctx, id, col, req.Order)
		metrics.ObserveEngine(time.Since(engineStart))
		if merr != nil {
			metrics.SetErrorStage("engine")
			err = writeError(c, merr)
			return err
		}
		metrics.SetTasksTouched(1)

		// The source column is not echoed back, so evict every column.
		board.Evict(ctx, domain.Columns[:]...)
		publishAsync(c, sink, taskEvent(domain.EventTaskMoved, moved))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, moved)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode")
		}
		return err
	}
}

func deleteTask(engine Engine, board BoardReader, sink EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/tasks/:id")
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		validateStart := time.Now()
		id, perr := parseTaskID(c.Param("id"))
		if perr != nil {
			metrics.SetErrorStage("validate")
			err = writeError(c, perr)
			return err
		}
		metrics.ObserveValidate(time.Since(validateStart))

		engineStart := time.Now()
		derr := engine.Delete(ctx, id)
		metrics.ObserveEngine(time.Since(engineStart))
		if derr != nil {
			metrics.SetErrorStage("engine")
			err = writeError(c, derr)
			return err
		}
		metrics.SetTasksTouched(1)

		board.Evict(ctx, domain.Columns[:]...)
		publishAsync(c, sink, deletedEvent(id))

		err = c.NoContent(http.StatusNoContent)
		return err
	}
}

func reorderColumn(engine Engine, board BoardReader, sink EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/columns/:column/reorder")
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		validateStart := time.Now()
		col, cerr := parseColumn(c.Param("column"))
		if cerr != nil {
			metrics.SetErrorStage("validate")
			err = writeError(c, cerr)
			return err
		}
		var req reorderRequest
		if derr := decodeBody(c, &req); derr != nil {
			metrics.SetErrorStage("decode")
			err = writeError(c, derr)
			return err
		}
		if len(req.Entries) == 0 {
			metrics.SetErrorStage("validate")
			err = writeError(c, &domain.ValidationError{Field: "entries", Reason: "must not be empty"})
			return err
		}
		metrics.ObserveValidate(time.Since(validateStart))

		engineStart := time.Now()
		tasks, rerr := engine.BulkReorder(ctx, col, req.Entries)
		metrics.ObserveEngine(time.Since(engineStart))
		if rerr != nil {
			metrics.SetErrorStage("engine")
			err = writeError(c, rerr)
			return err
		}
		metrics.SetTasksTouched(len(req.Entries))

		board.Evict(ctx, col)
		publishAsync(c, sink, reorderEvent(col, req.Entries))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, columnResponse{Column: col, Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode")
		}
		return err
	}
}

func taskEvent(evType string, t domain.Task) domain.BoardEvent {
	data, _ := sonic.Marshal(t)
	return domain.BoardEvent{
		ID:        uuid.NewString(),
		Type:      evType,
		TaskID:    t.ID,
		Column:    t.Column,
		Data:      data,
		Timestamp: nextTimestamp(),
	}
}

func deletedEvent(id string) domain.BoardEvent {
	return domain.BoardEvent{
		ID:        uuid.NewString(),
		Type:      domain.EventTaskDeleted,
		TaskID:    id,
		Timestamp: nextTimestamp(),
	}
}

func reorderEvent(col domain.Column, entries []domain.OrderAssignment) domain.BoardEvent {
	data, _ := sonic.Marshal(entries)
	return domain.BoardEvent{
		ID:        uuid.NewString(),
		Type:      domain.EventColumnReordered,
		Column:    col,
		Data:      data,
		Timestamp: nextTimestamp(),
	}
}

func publishAsync(c echo.Context, sink EventSink, events ...domain.BoardEvent) {
	if tryPublishJob(publishJob{events: events}) {
		return
	}

	if globalLog != nil {
		globalLog.Warn("event publisher saturated; publishing inline")
	}

	timeout := publishTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(bg, timeout)
	defer cancel()
	if err := sink.PublishEvents(ctx, events); err != nil {
		c.Logger().Errorf("inline event publish failed: %v", err)
	}
}

func statusForError(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func orEmpty(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}
