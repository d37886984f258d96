package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

type deepSearchRequest struct {
	UserInput string `json:"userInput"`
	SessionID string `json:"sessionId"`
}

type documentAnalysisRequest struct {
	Documents []domain.AnalysisDocument `json:"documents"`
	SessionID string                    `json:"sessionId"`
}

func (rt *Router) deepSearchAnalysis(w http.ResponseWriter, r *http.Request) {
	var req deepSearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sse := newSSEWriter(w)
	_, err := rt.svc.DeepSearch.Run(r.Context(), req.SessionID, req.UserInput, sse.Send)
	rt.finishPipeline(w, r, sse, "deep_search", err)
}

func (rt *Router) documentAnalysis(w http.ResponseWriter, r *http.Request) {
	var req documentAnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sse := newSSEWriter(w)
	_, err := rt.svc.Documents.Run(r.Context(), req.SessionID, req.Documents, sse.Send)
	rt.finishPipeline(w, r, sse, "document_analysis", err)
}

// finishPipeline answers with JSON when the pipeline failed before its first frame.
// Later failures were already reported in-stream by the pipeline.
func (rt *Router) finishPipeline(w http.ResponseWriter, r *http.Request, sse *sseWriter, pipeline string, err error) {
	if err == nil {
		return
	}
	if !sse.Started() {
		writeError(w, r, err)
		return
	}
	slog.Warn("pipeline_failed",
		"request_id", requestIDFromContext(r.Context()),
		"pipeline", pipeline,
		"error", err.Error(),
	)
}

func (rt *Router) deepSearchBooks(w http.ResponseWriter, r *http.Request) {
	var req domain.DraftBookSearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := rt.svc.Books.SearchDraft(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil && result.Result != nil {
		rt.metrics.RecordRetrievedBooks(serviceName, "deep-search-books", len(result.Result.Books))
	}
	writeJSON(w, http.StatusOK, result)
}
