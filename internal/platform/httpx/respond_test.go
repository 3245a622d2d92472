package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusFor(shared.NewValidationError("note", "too long")))
	require.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("picking: get: %w", shared.ErrNotFound)))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(shared.BusinessRule("negative stock")))
	require.Equal(t, http.StatusConflict, StatusFor(shared.ErrConflict))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(&shared.TransientError{Attempts: 3, Err: errors.New("eof")}))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: secret detail"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.OK)
	require.Equal(t, []string{"Internal Server Error"}, env.Errors)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2025-08-11","extra":1}`))
	var body struct {
		Date string `json:"date"`
	}
	err := DecodeJSON(req, &body)
	require.ErrorIs(t, err, shared.ErrValidation)
}
