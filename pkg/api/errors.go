package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/gooseworks/goose/pkg/chat"
	"github.com/gooseworks/goose/pkg/history"
	"github.com/gooseworks/goose/pkg/queue"
	"github.com/gooseworks/goose/pkg/runner"
)

// ErrorResponse is the uniform non-2xx envelope.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// respondError writes the error envelope directly so every failure shape is
// {detail: string} regardless of echo's default error handler.
func respondError(c *echo.Context, status int, detail string) error {
	return c.JSON(status, ErrorResponse{Detail: detail})
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(c *echo.Context, err error) error {
	var validErr *chat.ValidationError
	if errors.As(err, &validErr) {
		return respondError(c, http.StatusBadRequest, validErr.Error())
	}
	switch {
	case errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrAgentNotFound),
		errors.Is(err, history.ErrIndexOutOfRange),
		errors.Is(err, runner.ErrNotFound):
		return respondError(c, http.StatusNotFound, err.Error())
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return respondError(c, http.StatusInternalServerError, "internal server error")
}
