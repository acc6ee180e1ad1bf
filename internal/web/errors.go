package web

// errors.go turns handler errors into JSON error bodies.
//
// The technical error is logged with the request id; the client receives the
// user message, suggested action and code from core.MapError. The status code
// follows the error kind:
//
//	invalid identifier, validation  400
//	file too large                  413
//	schema conflict                 409
//	table not found                 404
//	busy, canceled                  503
//	database, unknown               500
//
// An absent record on update or delete is a 404 with code NF001.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/dynatable/internal/core"
	"github.com/JonMunkholm/dynatable/internal/logging"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, core.ErrFileTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch core.Kind(err) {
	case core.KindInvalidIdentifier, core.KindValidation:
		return http.StatusBadRequest
	case core.KindSchemaConflict:
		return http.StatusConflict
	case core.KindTableNotFound:
		return http.StatusNotFound
	case core.KindBusy, core.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it with the status its kind maps to.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondNotFound is used for update and delete of an absent record, which
// is a result rather than an error.
func respondNotFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   what + " not found",
		Message: what + " not found",
		Code:    "NF001",
	})
}
