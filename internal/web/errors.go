package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status comes from the error kind, the body from core.MapError
//  4. Technical error + context is logged with the request ID; errors
//     without a support code are logged at error level
//  5. The client receives the user-facing message and code only

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/listings/internal/core"
	"github.com/JonMunkholm/listings/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
}

var tooLarge = core.UserMessage{
	Message: "Request body is too large",
	Action:  "Send fewer or smaller images, or split the CSV file",
	Code:    "REQ001",
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrScrapingDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error and writes the user-facing one.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := core.MapError(err)
	if status == http.StatusRequestEntityTooLarge {
		msg = tooLarge
	}

	logger := logging.WithFields(r.Context(),
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
	)
	switch {
	case status >= http.StatusInternalServerError && !core.IsUserFacing(err):
		logger.Error("unexpected request error", "error", err.Error())
	case status >= http.StatusInternalServerError:
		logger.Warn("request failed", "error", err.Error())
	default:
		logger.Debug("request rejected", "error", err.Error())
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
		resp.Line = ve.Line
	}

	if status == http.StatusTooManyRequests {
		wait := int(s.cfg.Ingest.MaxWaitTime.Seconds())
		if wait < 1 {
			wait = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(wait))
	}
	writeJSON(w, status, resp)
}
