package handler

// ERROR MAPPING:
// This is where domain errors (from the service layer) get translated to
// HTTP. The service returns apperror.ErrValidation, apperror.ErrConflict,
// etc.; errorStatus maps those to 400, 409, etc. and picks the message the
// visitor sees when the form is re-rendered.
//
// errors.Is() walks the whole chain, so this works for errors wrapped by
// the service ("service/account: creating user: %w").

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/account-portal/internal/apperror"
)

// genericErrorMessage is shown for faults the visitor cannot fix.
// Internal error text (SQL, file paths) is never rendered.
const genericErrorMessage = "something went wrong, please try again"

// uploadTooLargeMessage is shown when the request body exceeds the limit.
const uploadTooLargeMessage = "the uploaded image is too large"

// errorStatus maps a domain error to an HTTP status and a visitor-facing
// message.
func errorStatus(err error) (int, string) {
	var appErr *apperror.AppError
	message := genericErrorMessage
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, message // 400
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, message // 401
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, message // 404
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, message // 409
	case errors.Is(err, apperror.ErrIntake):
		return http.StatusInternalServerError, message // 500, message is generic
	default:
		return http.StatusInternalServerError, genericErrorMessage
	}
}

// logFailure logs a failed form post. Faults on our side are errors; a
// visitor's mistake is only worth an info line.
func logFailure(logger *slog.Logger, r *http.Request, status int, err error) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "form rejected",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
}
