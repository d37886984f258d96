package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

const (
	headerMode             = "X-AIBot-Mode"
	headerIntent           = "X-AIBot-Intent"
	headerIntentConfidence = "X-AIBot-Intent-Confidence"
	headerDowngraded       = "X-AIBot-Downgraded"
	headerBookCount        = "X-AIBot-Book-Count"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		return domain.NewValidationError("body", "请求体不是合法的 JSON")
	}
	return nil
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	plan, err := rt.svc.Chat.Prepare(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordPlan(plan)

	h := w.Header()
	h.Set(headerMode, string(plan.Resolution.Mode))
	h.Set(headerIntent, string(plan.Intent.Intent))
	h.Set(headerIntentConfidence, strconv.FormatFloat(plan.Intent.Confidence, 'f', 2, 64))
	h.Set(headerDowngraded, strconv.FormatBool(plan.Resolution.Downgraded))
	h.Set(headerBookCount, strconv.Itoa(len(plan.Books)))

	stream := newTextStream(w)
	if err := rt.svc.Chat.Stream(r.Context(), plan, stream); err != nil {
		if !stream.started {
			writeError(w, r, err)
			return
		}
		slog.Error("chat_stream_failed",
			"request_id", requestIDFromContext(r.Context()),
			"mode", plan.Resolution.Mode,
			"error", err.Error(),
		)
		return
	}
	stream.start()
}

func (rt *Router) recordPlan(plan *domain.ChatPlan) {
	slog.Info("chat_plan",
		"mode", plan.Resolution.Mode,
		"intent", plan.Intent.Intent,
		"confidence", plan.Intent.Confidence,
		"source", plan.Intent.Source,
		"downgraded", plan.Resolution.Downgraded,
		"books", len(plan.Books),
	)
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordIntent(serviceName, string(plan.Intent.Intent), string(plan.Intent.Source))
	rt.metrics.RecordModeResolution(serviceName, string(plan.Resolution.Mode), plan.Resolution.Downgraded)
	if plan.Retrieval != nil {
		rt.metrics.RecordRetrievedBooks(serviceName, "chat", len(plan.Retrieval.Books))
	}
}

func (rt *Router) generateInterpretation(w http.ResponseWriter, r *http.Request) {
	var req domain.InterpretationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	stream := newTextStream(w)
	if err := rt.svc.Interpretation.Interpret(r.Context(), req, stream); err != nil {
		if !stream.started {
			writeError(w, r, err)
			return
		}
		slog.Error("interpretation_stream_failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err.Error(),
		)
		return
	}
	stream.start()
}
