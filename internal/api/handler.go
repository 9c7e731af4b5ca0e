package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/yakoovad/scrumboard/internal/metrics"
	"github.com/yakoovad/scrumboard/internal/service"
	"go.uber.org/zap"
)

type Handler struct {
	auth       *service.AuthService
	projects   *service.ProjectService
	iterations *service.IterationService
	tasks      *service.TaskService

	healthChecker HealthChecker
	metrics       *metrics.Metrics

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) WithAuthService(auth *service.AuthService) *Handler {
	h.auth = auth
	return h
}

func (h *Handler) WithProjectService(projects *service.ProjectService) *Handler {
	h.projects = projects
	return h
}

func (h *Handler) WithIterationService(iterations *service.IterationService) *Handler {
	h.iterations = iterations
	return h
}

func (h *Handler) WithTaskService(tasks *service.TaskService) *Handler {
	h.tasks = tasks
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = MustNewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}
	if h.metrics != nil {
		e.Use(MetricsMiddleware(h.metrics))
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}

	authGroup := e.Group("/auth")
	authGroup.PUT("/signup", h.Signup)
	authGroup.POST("/login", h.Login)

	projects := e.Group("/projects", h.Guards(h.Authenticated))
	projects.GET("", h.ListProjects)
	projects.PUT("", h.CreateProject)
	projects.GET("/:projectId", h.GetProject)
	projects.POST("/:projectId/join", h.JoinProject)
	projects.POST("/:projectId/leave", h.LeaveProject)

	admin := projects.Group("/:projectId", h.Guards(h.ProjectAdmin))
	admin.PATCH("", h.UpdateProject)
	admin.DELETE("", h.DeleteProject)
	admin.POST("/acceptUser/:userId", h.AcceptUser)
	admin.POST("/rejectUser/:userId", h.RejectUser)
	admin.PUT("/iterations", h.CreateIteration)
	admin.PATCH("/iterations/:iterationId", h.UpdateIteration)
	admin.DELETE("/iterations/:iterationId", h.DeleteIteration)

	member := projects.Group("/:projectId/tasks", h.Guards(h.ProjectMember))
	member.PUT("", h.CreateTask)
	member.PATCH("/:taskId", h.UpdateTask)
	member.POST("/:taskId/storage", h.MoveTask)
	member.DELETE("/:taskId", h.DeleteTask)
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := echo.Map{"message": err.Message}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeUnauthorized, service.ErrorCodeEmailExists:
		return e.JSON(http.StatusUnauthorized, response)
	case service.ErrorCodeForbidden:
		return e.JSON(http.StatusForbidden, response)
	case service.ErrorCodeConflict:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeInvalidRequest:
		return e.JSON(http.StatusUnprocessableEntity, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
