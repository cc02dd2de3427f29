package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-ticket-lifecycle/internal/apperror"
)

// APIResponse is the envelope every JSON endpoint returns. Code is set only
// on failures.
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Data      any       `json:"data,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func SuccessResponse(message string, data any) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse builds the failure envelope for err. The wrapped cause is
// exposed as Detail only for caller-side codes; internal and downstream
// causes stay in the logs.
func ErrorResponse(err error) APIResponse {
	code := apperror.CodeOf(err)
	resp := APIResponse{
		Success:   false,
		Message:   apperror.MessageOf(err),
		Code:      string(code),
		Timestamp: time.Now().UTC(),
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Cause != nil && apperror.HTTPStatus(code) < http.StatusInternalServerError {
		resp.Detail = appErr.Cause.Error()
	}
	return resp
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err with the status its code maps to. Errors outside
// the taxonomy render as INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, apperror.HTTPStatus(apperror.CodeOf(err)), ErrorResponse(err))
}
