package handlers

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ecolearn/ecolearn-api/internal/apperr"
)

// newError renders huma's own failures (schema validation, unknown routes,
// panics in transformers) in the same shape as service errors.
func newError(status int, msg string, errs ...error) huma.StatusError {
	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	detail := strings.Join(details, "; ")

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperr.Validation(msg, detail)
	case status == http.StatusUnauthorized:
		return apperr.Unauthorized(msg)
	case status == http.StatusForbidden:
		return apperr.Forbidden(msg)
	case status == http.StatusNotFound:
		return &apperr.AppError{Status: status, Code: apperr.CodeNotFound, Reason: "not found", Message: msg}
	case status == http.StatusConflict:
		return apperr.Conflict(msg)
	case status >= http.StatusInternalServerError:
		e := apperr.Internal(msg, nil)
		e.Status = status
		return e
	}
	return &apperr.AppError{Status: status, Code: strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")), Message: msg, Details: detail}
}
