package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

type projectRequest struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description" validate:"required,min=3"`
}

func (h *Handler) ListProjects(e echo.Context) error {
	projects, err := h.projects.ListProjects(e.Request().Context(), callerID(e))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message":  "Projects successfully fetched",
		"projects": projects,
	})
}

func (h *Handler) GetProject(e echo.Context) error {
	project, err := h.projects.GetProject(e.Request().Context(), e.Param("projectId"), callerID(e))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "Project successfully fetched",
		"project": project,
	})
}

func (h *Handler) CreateProject(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req projectRequest
	if err := ProcessRequest(e, &req, bind[projectRequest], normalizeProject, validate[projectRequest]); err != nil {
		l.Warn("invalid project request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	project, err := h.projects.CreateProject(e.Request().Context(), callerID(e), req.Title, req.Description)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, echo.Map{
		"message": "Project successfully created",
		"project": project,
	})
}

func (h *Handler) UpdateProject(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req projectRequest
	if err := ProcessRequest(e, &req, bind[projectRequest], normalizeProject, validate[projectRequest]); err != nil {
		l.Warn("invalid project request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	project, err := h.projects.UpdateProject(e.Request().Context(), e.Param("projectId"), req.Title, req.Description)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "Project successfully updated",
		"project": project,
	})
}

func (h *Handler) DeleteProject(e echo.Context) error {
	projectID := e.Param("projectId")

	if err := h.projects.DeleteProject(e.Request().Context(), projectID); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message":   "Project successfully deleted",
		"projectId": projectID,
	})
}

func (h *Handler) JoinProject(e echo.Context) error {
	userID := callerID(e)

	if err := h.projects.RequestJoin(e.Request().Context(), e.Param("projectId"), userID); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "User is now in the queue",
		"userId":  userID,
	})
}

func (h *Handler) LeaveProject(e echo.Context) error {
	projectID := e.Param("projectId")
	userID := callerID(e)

	if err := h.projects.LeaveProject(e.Request().Context(), projectID, userID); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message":   "User successfully left the project",
		"userId":    userID,
		"projectId": projectID,
	})
}

func (h *Handler) AcceptUser(e echo.Context) error {
	member, err := h.projects.AcceptUser(e.Request().Context(), e.Param("projectId"), e.Param("userId"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message":  "User is now joined",
		"userId":   member.ID,
		"username": member.Username,
	})
}

func (h *Handler) RejectUser(e echo.Context) error {
	userID := e.Param("userId")

	if err := h.projects.RejectUser(e.Request().Context(), e.Param("projectId"), userID); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{
		"message": "User participation is rejected",
		"userId":  userID,
	})
}
