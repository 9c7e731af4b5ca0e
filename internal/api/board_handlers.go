package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/internal/service"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

var deadlineLayouts = []string{time.RFC3339, "2006-01-02"}

type iterationRequest struct {
	Title    string `json:"title" validate:"required,min=3"`
	Deadline string `json:"deadline" validate:"required"`

	deadline time.Time
}

func parseDeadline(_ echo.Context, req *iterationRequest) *service.Error {
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, req.Deadline); err == nil {
			req.deadline = t
			return nil
		}
	}
	return service.NewError(service.ErrorCodeInvalidRequest, validationFailedMessage)
}

type taskRequest struct {
	Title       string `json:"title" validate:"required,min=1"`
	Description string `json:"description" validate:"required,min=1"`
	StoryPoints *int   `json:"storyPoints" validate:"required,min=0,max=5"`
	IterationID string `json:"iterationId"`
}

func (r *taskRequest) content() model.TaskContent {
	return model.TaskContent{
		Title:       r.Title,
		Description: r.Description,
		StoryPoints: *r.StoryPoints,
	}
}

type storageRef struct {
	IterationID string      `json:"iterationId" validate:"required"`
	Storage     model.Stage `json:"storage" validate:"required,oneof=TODO DOING DONE"`
}

type moveRequest struct {
	StorageData struct {
		MoveFromBacklog   bool        `json:"moveFromBacklog"`
		MoveFromIteration *storageRef `json:"moveFromIteration"`
		MoveToBacklog     bool        `json:"moveToBacklog"`
		MoveToIteration   *storageRef `json:"moveToIteration"`
	} `json:"storageData"`

	spec model.MoveSpec
}

// resolveMove turns the storage data into a move. Each side must name
// exactly one of the backlog or an iteration stage.
func resolveMove(_ echo.Context, req *moveRequest) *service.Error {
	data := req.StorageData

	from, ok := location(data.MoveFromBacklog, data.MoveFromIteration)
	if !ok {
		return service.NewError(service.ErrorCodeInvalidRequest, "Incorrect request payload")
	}
	to, ok := location(data.MoveToBacklog, data.MoveToIteration)
	if !ok {
		return service.NewError(service.ErrorCodeInvalidRequest, "Incorrect request payload")
	}

	req.spec = model.MoveSpec{From: from, To: to}
	return nil
}

func location(backlog bool, iteration *storageRef) (model.Location, bool) {
	switch {
	case backlog && iteration == nil:
		return model.Backlog, true
	case !backlog && iteration != nil:
		return model.InIteration(iteration.IterationID, iteration.Storage), true
	}
	return model.Location{}, false
}

func (h *Handler) CreateIteration(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req iterationRequest
	if err := ProcessRequest(e, &req, bind[iterationRequest], normalizeIteration, validate[iterationRequest], parseDeadline); err != nil {
		l.Warn("invalid iteration request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	iteration, err := h.iterations.CreateIteration(e.Request().Context(), e.Param("projectId"), req.Title, req.deadline)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, echo.Map{
		"message":   "Iteration successfully created",
		"iteration": iteration,
	})
}

func (h *Handler) UpdateIteration(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req iterationRequest
	if err := ProcessRequest(e, &req, bind[iterationRequest], normalizeIteration, validate[iterationRequest], parseDeadline); err != nil {
		l.Warn("invalid iteration request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	iteration, err := h.iterations.UpdateIteration(e.Request().Context(),
		e.Param("projectId"), e.Param("iterationId"), req.Title, req.deadline)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message":   "Iteration successfully updated",
		"iteration": iteration,
	})
}

func (h *Handler) DeleteIteration(e echo.Context) error {
	deleteTasks := e.QueryParam("deleteTasks") == "true"

	project, err := h.iterations.DeleteIteration(e.Request().Context(),
		e.Param("projectId"), e.Param("iterationId"), deleteTasks, callerID(e))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "Iteration successfully deleted",
		"project": project,
	})
}

func (h *Handler) CreateTask(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req taskRequest
	if err := ProcessRequest(e, &req, bind[taskRequest], normalizeTask, validate[taskRequest]); err != nil {
		l.Warn("invalid task request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	task, err := h.tasks.CreateTask(e.Request().Context(), e.Param("projectId"), req.IterationID, req.content())
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, echo.Map{
		"message": "Task successfully created",
		"task":    task,
	})
}

func (h *Handler) UpdateTask(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req taskRequest
	if err := ProcessRequest(e, &req, bind[taskRequest], normalizeTask, validate[taskRequest]); err != nil {
		l.Warn("invalid task request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	task, err := h.tasks.UpdateContent(e.Request().Context(), e.Param("projectId"), e.Param("taskId"), req.content())
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "Task successfully updated",
		"task":    task,
	})
}

func (h *Handler) MoveTask(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req moveRequest
	if err := ProcessRequest(e, &req, bind[moveRequest], validate[moveRequest], resolveMove); err != nil {
		l.Warn("invalid move request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	taskID, err := h.tasks.Move(e.Request().Context(), e.Param("projectId"), e.Param("taskId"), req.spec)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "Task successfully moved",
		"taskId":  taskID,
	})
}

func (h *Handler) DeleteTask(e echo.Context) error {
	taskID, err := h.tasks.DeleteTask(e.Request().Context(), e.Param("projectId"), e.Param("taskId"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "Task was successfully deleted",
		"taskId":  taskID,
	})
}
