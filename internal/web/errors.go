package web

// errors.go turns service errors into JSON responses.
//
// Every error goes through core.MapError, so the client sees a stable code
// and a short message while the technical error stays in the server log
// alongside the request ID.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/idlookup/internal/core"
	"github.com/JonMunkholm/idlookup/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusByCode maps MapError codes to HTTP status codes.
var statusByCode = map[string]int{
	"DIR001":    http.StatusNotFound,
	"VAL001":    http.StatusUnprocessableEntity,
	"VAL002":    http.StatusUnprocessableEntity,
	"VAL003":    http.StatusBadRequest,
	"STORE001":  http.StatusServiceUnavailable,
	"STORE002":  http.StatusServiceUnavailable,
	"BULK001":   http.StatusTooManyRequests,
	"CSV001":    http.StatusBadRequest,
	"BACKUP001": http.StatusNotFound,
	"RATE001":   http.StatusTooManyRequests,
	"AUTH001":   http.StatusUnauthorized,
	"AUTH002":   http.StatusForbidden,
	"REQ001":    http.StatusBadRequest,
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	if errors.Is(err, core.ErrBulkInputTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if status, ok := statusByCode[core.MapError(err).Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)
	logError(r, err, status, msg.Code)
	writeJSON(w, status, errorBody(msg))
}

// deny is the DenyFunc handed to middleware.
func (s *Server) deny(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err)
}

func logError(r *http.Request, err error, status int, code string) {
	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", chimw.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
		return
	}
	logger.Warn("request error", attrs...)
}

func errorBody(msg core.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// writeJSON encodes v with status. Encoding errors are logged only, since
// the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
