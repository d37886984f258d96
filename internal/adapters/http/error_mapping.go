package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

const (
	messageUnavailable = "服务暂时不可用，请稍后重试"
	messageDisabled    = "Local AIBot 未启用"
	messageNotFound    = "资源不存在"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrFeatureDisabled):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError answers with a client-safe message. Server-side failures are logged in full
// and reported with a generic message only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: messageUnavailable}

	switch status {
	case http.StatusBadRequest:
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			resp = errorResponse{Error: validation.Message, Field: validation.Field}
		} else {
			resp.Error = err.Error()
		}
	case http.StatusNotFound:
		resp.Error = messageNotFound
		if domain.IsKind(err, domain.ErrFeatureDisabled) {
			resp.Error = messageDisabled
		}
	default:
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, resp)
}
