package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/scrumboard/internal/service"
)

const validationFailedMessage = "Validation failed. Please, provide correct data and make another request."

// ProcessRequest runs the decoding steps over req in order and stops at the
// first failure.
func ProcessRequest[T any](e echo.Context, req *T, steps ...func(echo.Context, *T) *service.Error) *service.Error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}

func bind[T any](e echo.Context, req *T) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidRequest, "Incorrect request payload")
	}
	return nil
}

func validate[T any](e echo.Context, req *T) *service.Error {
	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidRequest, validationFailedMessage)
	}
	return nil
}

// normalizeEmail trims and lower-cases an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeSignup(_ echo.Context, req *signupRequest) *service.Error {
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	return nil
}

func normalizeLogin(_ echo.Context, req *loginRequest) *service.Error {
	req.Email = normalizeEmail(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	return nil
}

func normalizeProject(_ echo.Context, req *projectRequest) *service.Error {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	return nil
}

func normalizeIteration(_ echo.Context, req *iterationRequest) *service.Error {
	req.Title = strings.TrimSpace(req.Title)
	req.Deadline = strings.TrimSpace(req.Deadline)
	return nil
}

func normalizeTask(_ echo.Context, req *taskRequest) *service.Error {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	return nil
}
