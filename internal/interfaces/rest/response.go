package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/application"
)

type APIResponse struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Meta    *Meta        `json:"meta,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// Meta tells the caller where a read was served from.
type Meta struct {
	Source   string    `json:"source"`
	StoredAt time.Time `json:"stored_at"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func WriteData(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// WriteError maps an error onto a status code and the error envelope.
// Unexpected errors are logged and their text is not exposed.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := application.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError && application.ToErrorCode(err) == "INTERNAL_ERROR" {
		logger.Error("unhandled error", "error", err)
	}

	WriteJSON(w, status, APIResponse{
		Success: false,
		Error: &ErrorDetail{
			Code:    application.ToErrorCode(err),
			Message: application.ToErrorMessage(err),
		},
	})
}

// WriteBadRequest reports invalid sidecar input.
func WriteBadRequest(w http.ResponseWriter, code, message string) {
	WriteJSON(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
