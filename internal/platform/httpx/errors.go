// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// StatusFor maps the shared error taxonomy to an HTTP status.
func StatusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrValidation), errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a failed envelope. Internal errors are not echoed.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	JSON(w, status, Envelope{OK: false, Errors: []string{msg}})
}
