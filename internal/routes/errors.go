package routes

import (
	"errors"

	"github.com/bohemiyan/ugibdd"
	"github.com/gofiber/fiber/v2"
)

const validationMessage = "Проверьте правильность заполнения полей"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	var ve *ugibdd.ValidationError
	var re *ugibdd.RemoteError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve), errors.Is(err, ugibdd.ErrInvalidInput), errors.Is(err, ugibdd.ErrSelfDelete):
		return fiber.StatusBadRequest
	case errors.Is(err, ugibdd.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, ugibdd.ErrNotFound), errors.Is(err, ugibdd.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ugibdd.ErrInvalidCredentials), errors.Is(err, ugibdd.ErrNotAuthenticated), errors.Is(err, ugibdd.ErrSessionExpired):
		return fiber.StatusUnauthorized
	case errors.As(err, &re):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// fail writes err as an ErrorResponse.
func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	body := ErrorResponse{Error: ugibdd.Localize(err, "")}
	var ve *ugibdd.ValidationError
	if errors.As(err, &ve) {
		body.Error = validationMessage
		body.Fields = ve.Fields
	}
	if status >= fiber.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler renders errors that escape the handlers, such as unknown routes.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(err)).JSON(ErrorResponse{Error: ugibdd.Localize(err, "")})
}
