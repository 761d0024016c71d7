// Package api exposes the HTTP surface of §6 over the memory pipeline,
// built on the teacher's chi+cors Router construction style
// (internal/api/handler.go's original Router()).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/curator"
	"github.com/nidhogg/agent-memory/internal/errs"
	"github.com/nidhogg/agent-memory/internal/ingestion"
	"github.com/nidhogg/agent-memory/internal/provider"
	"github.com/nidhogg/agent-memory/internal/retrieval"
	"github.com/nidhogg/agent-memory/internal/signal"
)

// Handler holds the component references the HTTP surface dispatches to.
type Handler struct {
	frontDoor *ingestion.FrontDoor
	engine    *retrieval.Engine
	gateway   *provider.Gateway
	curator   *curator.Curator
	logs      *signal.Logger
	logger    *zap.Logger
}

// NewHandler creates a Handler over the pipeline's components.
func NewHandler(frontDoor *ingestion.FrontDoor, engine *retrieval.Engine, gw *provider.Gateway, cur *curator.Curator, logs *signal.Logger, logger *zap.Logger) *Handler {
	return &Handler{frontDoor: frontDoor, engine: engine, gateway: gw, curator: cur, logs: logs, logger: logger}
}

// Router builds the chi router with all routes from §6.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/memory", h.submitMemory)
		r.Get("/search", h.search)
		r.Post("/search/rewritten", h.searchRewritten)
		r.Post("/ai/generate", h.aiGenerate)
		r.Post("/ai/sanitize", h.aiSanitize)
		r.Get("/sse/logs", h.sseLogs)
	})
	r.Post("/trigger-curator", h.triggerCurator)

	return r
}

type submitMemoryRequest struct {
	Text        string   `json:"text"`
	SourceApp   string   `json:"source_app,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	ContextTags []string `json:"context_tags,omitempty"`
}

func (h *Handler) submitMemory(w http.ResponseWriter, r *http.Request) {
	var req submitMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := h.frontDoor.Submit(r.Context(), ingestion.SubmitInput{
		Text:        req.Text,
		ContextTags: req.ContextTags,
		SourceApp:   req.SourceApp,
		SessionID:   req.SessionID,
	}, time.Now().UnixMilli())
	if err != nil {
		if errs.Is(err, errs.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "status": "queued"})
}

type searchResultJSON struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags"`
	Score     float32  `json:"score"`
	CreatedAt int64    `json:"created_at"`
	SourceApp string   `json:"source_app,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Status    string   `json:"status"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("q is required: %w", errs.ErrInvalidInput))
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	results, err := h.engine.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]searchResultJSON, 0, len(results))
	for _, res := range results {
		out = append(out, searchResultJSON{
			ID:        res.Memory.ID,
			Text:      res.Memory.Text,
			Tags:      res.Memory.Tags,
			Score:     res.Score,
			CreatedAt: res.Memory.CreatedAt,
			SourceApp: res.Memory.SourceApp,
			SessionID: res.Memory.SessionID,
			Status:    string(res.Memory.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type searchRewrittenRequest struct {
	Queries  []string                 `json:"queries"`
	Context  *provider.RewriteContext `json:"context,omitempty"`
	TopK     int                      `json:"topK,omitempty"`
	Provider string                   `json:"provider,omitempty"`
	Model    string                   `json:"model,omitempty"`
}

func (h *Handler) searchRewritten(w http.ResponseWriter, r *http.Request) {
	var req searchRewrittenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("queries is required: %w", errs.ErrInvalidInput))
		return
	}

	queries := make([]retrieval.RewrittenQuery, len(req.Queries))
	for i, q := range req.Queries {
		queries[i] = retrieval.RewrittenQuery{Query: q, Context: req.Context}
	}

	opts := provider.TextOptions{Provider: provider.Kind(req.Provider), Model: req.Model}
	results := h.engine.RewrittenSearch(r.Context(), queries, req.TopK, opts)

	out := make([]map[string]any, len(results))
	for i, res := range results {
		matches := make([]map[string]any, len(res.Matches))
		for j, m := range res.Matches {
			matches[j] = map[string]any{"id": m.ID, "score": m.Score, "metadata": m.Metadata}
		}
		out[i] = map[string]any{
			"originalQuery":  res.OriginalQuery,
			"rewrittenQuery": res.RewrittenQuery,
			"vectorResults":  map[string]any{"matches": matches},
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": out})
}

type aiGenerateRequest struct {
	Prompt   string         `json:"prompt"`
	System   string         `json:"system,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Schema   map[string]any `json:"schema,omitempty"`
}

func (h *Handler) aiGenerate(w http.ResponseWriter, r *http.Request) {
	var req aiGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("prompt is required: %w", errs.ErrInvalidInput))
		return
	}

	if req.Schema != nil {
		result, err := h.gateway.GenerateStructured(r.Context(), req.Prompt, req.Schema, provider.StructuredOptions{
			Provider: provider.Kind(req.Provider),
			Model:    req.Model,
		})
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "response": result})
		return
	}

	result, err := h.gateway.GenerateText(r.Context(), req.Prompt, req.System, provider.TextOptions{
		Provider: provider.Kind(req.Provider),
		Model:    req.Model,
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "response": result})
}

type aiSanitizeRequest struct {
	Text string `json:"text"`
}

func (h *Handler) aiSanitize(w http.ResponseWriter, r *http.Request) {
	var req aiSanitizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": h.gateway.Sanitize(req.Text)})
}

// sseLogs streams the current tail and then live appends as
// text/event-stream lines, grounded on the teacher's channel-wait REST
// adapter pattern (internal/gateway/rest.go).
func (h *Handler) sseLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, e := range h.logs.Tail() {
		writeSSEEntry(w, e)
	}
	flusher.Flush()

	live, unsubscribe := h.logs.Subscribe()
	defer unsubscribe()

	for {
		select {
		case e, ok := <-live:
			if !ok {
				return
			}
			writeSSEEntry(w, e)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEEntry(w http.ResponseWriter, e signal.Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (h *Handler) triggerCurator(w http.ResponseWriter, r *http.Request) {
	// r.Context() is canceled the instant ServeHTTP returns, which happens
	// right after WriteHeader below — use a detached background context so
	// the run actually survives past the response.
	go h.curator.FireNow(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errs.Is(err, errs.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errs.Is(err, errs.ErrStructuredGeneration):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errs.Is(err, errs.ErrPermanentBackend):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
