package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/scrumboard/internal/auth"
	"github.com/yakoovad/scrumboard/internal/metrics"
	"github.com/yakoovad/scrumboard/internal/service"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}
			if userID, ok := c.Get(userIDKey).(string); ok {
				fields = append(fields, zap.String("user_id", userID))
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

// MetricsMiddleware records the count and latency of requests per route.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			m.ObserveHTTPRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start).Seconds())
			return err
		}
	}
}

// Guard is an authorization predicate evaluated before a handler.
type Guard func(c echo.Context) *service.Error

// Guards evaluates guards in order and answers with the first failure.
func (h *Handler) Guards(guards ...Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, guard := range guards {
				if err := guard(c); err != nil {
					logger.FromContext(c.Request().Context()).Warn("request not authorized",
						zap.String("path", c.Path()),
						zap.String("reason", err.Message))
					return h.transportError(c, err)
				}
			}
			return next(c)
		}
	}
}

// Authenticated resolves the caller from the bearer token.
func (h *Handler) Authenticated(c echo.Context) *service.Error {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return service.NewError(service.ErrorCodeUnauthorized, "Not authenticated")
	}

	claims, err := auth.VerifyToken(token)
	if err != nil {
		return service.NewError(service.ErrorCodeUnauthorized, "Not authenticated")
	}

	c.Set(userIDKey, claims.UserID())

	req := c.Request()
	l := logger.FromContext(req.Context()).With(zap.String("user_id", claims.UserID()))
	c.SetRequest(req.WithContext(logger.WithLogger(req.Context(), l)))
	return nil
}

// ProjectAdmin requires the caller to administrate :projectId.
func (h *Handler) ProjectAdmin(c echo.Context) *service.Error {
	return h.projects.CheckAdmin(c.Request().Context(), c.Param("projectId"), callerID(c))
}

// ProjectMember requires the caller to be a member of :projectId.
func (h *Handler) ProjectMember(c echo.Context) *service.Error {
	return h.projects.CheckMember(c.Request().Context(), c.Param("projectId"), callerID(c))
}

func callerID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
