package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=2,username"`
	Password string `json:"password" validate:"required,min=6,alphanum"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,alphanum"`
}

func (h *Handler) Signup(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req signupRequest
	if err := ProcessRequest(e, &req, bind[signupRequest], normalizeSignup, validate[signupRequest]); err != nil {
		l.Warn("invalid signup request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	userID, err := h.auth.Signup(e.Request().Context(), req.Email, req.Username, req.Password)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, echo.Map{
		"message": "User created!",
		"userId":  userID,
	})
}

func (h *Handler) Login(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req loginRequest
	if err := ProcessRequest(e, &req, bind[loginRequest], normalizeLogin, validate[loginRequest]); err != nil {
		l.Warn("invalid login request", zap.String("reason", err.Message))
		return h.transportError(e, err)
	}

	session, err := h.auth.Login(e.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, session)
}
