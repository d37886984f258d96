package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/bookshelf-aibot/internal/config"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
	"github.com/kirillkom/bookshelf-aibot/internal/observability/metrics"
)

const (
	serviceName = "aibot-api"
	apiPrefix   = "/api/local-aibot"
)

// Services are the inbound ports served by the router. Sessions may be nil when no
// session store is configured.
type Services struct {
	Chat           ports.ChatService
	DeepSearch     ports.DeepSearchService
	Documents      ports.DocumentAnalysisService
	Interpretation ports.InterpretationService
	Books          ports.BookSearchService
	Upload         ports.DocumentUploadService
	Sessions       ports.SessionReader
}

type Router struct {
	cfg       config.Config
	svc       Services
	metrics   *metrics.HTTPServerMetrics
	doc       *openapi3.T
	validator *openAPIValidator
}

func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	rt := &Router{cfg: cfg, svc: svc, metrics: httpMetrics}

	doc, err := loadOpenAPIDocument()
	if err != nil {
		slog.Warn("openapi_document_unavailable", "error", err.Error())
		return rt
	}
	rt.doc = doc
	if cfg.OpenAPIValidationEnabled {
		validator, err := newOpenAPIValidator(doc)
		if err != nil {
			slog.Warn("openapi_validation_disabled", "error", err.Error())
			return rt
		}
		rt.validator = validator
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle(apiPrefix+"/", rt.apiHandler())

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) apiHandler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST "+apiPrefix+"/chat", rt.chat)
	api.HandleFunc("POST "+apiPrefix+"/deep-search-analysis", rt.deepSearchAnalysis)
	api.HandleFunc("POST "+apiPrefix+"/document-analysis", rt.documentAnalysis)
	api.HandleFunc("POST "+apiPrefix+"/generate-interpretation", rt.generateInterpretation)
	api.HandleFunc("POST "+apiPrefix+"/deep-search-books", rt.deepSearchBooks)
	api.HandleFunc("POST "+apiPrefix+"/document-upload", rt.documentUpload)
	api.HandleFunc("GET "+apiPrefix+"/sessions/{id}", rt.getSession)

	var handler http.Handler = api
	if rt.validator != nil {
		handler = rt.validator.middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	return featureGateMiddleware(handler, rt.cfg.LocalAIBotEnabled)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"local_aibot_enabled": rt.cfg.LocalAIBotEnabled,
	})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	if rt.doc == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: messageUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, rt.doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
