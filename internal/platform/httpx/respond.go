package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Envelope wraps every response body.
type Envelope struct {
	OK     bool     `json:"ok"`
	Data   any      `json:"data,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends a successful envelope.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{OK: true, Data: data})
}

// Partial sends a 200 envelope carrying data and per-batch errors. ok mirrors whether errs is empty.
func Partial(w http.ResponseWriter, data any, errs []string) {
	JSON(w, http.StatusOK, Envelope{OK: len(errs) == 0, Data: data, Errors: errs})
}

// DecodeJSON decodes JSON request body into the target struct. Unknown fields are rejected.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return shared.NewValidationError("body", fmt.Sprintf("invalid json: %v", err))
	}
	return nil
}

// FailureMessages flattens batch failures into envelope errors.
func FailureMessages(failures []shared.BatchFailure) []string {
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		out = append(out, fmt.Sprintf("%s batch %d (%d rows): %s", f.Op, f.Batch, f.Rows, f.Reason))
	}
	return out
}
