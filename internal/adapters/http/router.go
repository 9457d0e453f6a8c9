package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/config"
	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
	"github.com/kirillkom/adaptive-rag/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type Router struct {
	query    ports.QueryService
	chat     ports.ConversationService
	reranker ports.RerankerAdmin
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger

	adminAPIKey      string
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

// NewRouter wires the HTTP surface. httpMetrics may be nil, in which case
// /metrics is not served.
func NewRouter(
	cfg config.Config,
	query ports.QueryService,
	chat ports.ConversationService,
	reranker ports.RerankerAdmin,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		query:            query,
		chat:             chat,
		reranker:         reranker,
		metrics:          httpMetrics,
		logger:           logger,
		adminAPIKey:      cfg.AdminAPIKey,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/rag/query", rt.queryRAG)
	mux.HandleFunc("/v1/chat", rt.chatTurn)
	mux.HandleFunc("/v1/sessions/reset", rt.resetSession)
	mux.HandleFunc("/v1/admin/reranker/reset", rt.resetReranker)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("rag-api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	answer, err := rt.query.Ask(r.Context(), req.Question)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) chatTurn(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		UserID   string `json:"user_id"`
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and question are required"})
		return
	}

	answer, err := rt.chat.Chat(r.Context(), req.UserID, req.Question)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) resetSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	threadID, err := rt.chat.Reset(r.Context(), req.UserID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"thread_id": threadID})
}

func (rt *Router) resetReranker(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if rt.adminAPIKey != "" && !isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.adminAPIKey) {
		rt.writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "reset reranker", errors.New("missing or invalid bearer token")))
		return
	}

	rt.reranker.Reset()
	rt.logger.Info("reranker_reset", slog.String("request_id", requestIDFromContext(r.Context())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			slog.String("request_id", requestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token == expectedToken
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
