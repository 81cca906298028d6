package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
	"github.com/ajones1923/cart-intelligence-agent/internal/core/ports"
	"github.com/ajones1923/cart-intelligence-agent/internal/expansion"
	"github.com/ajones1923/cart-intelligence-agent/internal/knowledge"
	"github.com/ajones1923/cart-intelligence-agent/internal/observability/metrics"
)

// Options tunes the router's traffic control. Zero values disable the
// corresponding guard.
type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	QueueWait      time.Duration
}

type Router struct {
	retriever ports.EvidenceRetriever
	answers   ports.AnswerService
	store     ports.VectorStore
	registry  *domain.Registry
	graph     *knowledge.Graph
	expander  *expansion.Engine
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

func NewRouter(
	retriever ports.EvidenceRetriever,
	answers ports.AnswerService,
	store ports.VectorStore,
	registry *domain.Registry,
	graph *knowledge.Graph,
	expander *expansion.Engine,
	serverMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	return &Router{
		retriever: retriever,
		answers:   answers,
		store:     store,
		registry:  registry,
		graph:     graph,
		expander:  expander,
		metrics:   serverMetrics,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/collections", rt.listCollections)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/query/stream", rt.queryStream)
	mux.HandleFunc("/v1/compare", rt.compare)
	mux.HandleFunc("/v1/related", rt.related)
	mux.HandleFunc("/v1/knowledge/stats", rt.knowledgeStats)
	mux.Handle("/metrics", rt.metrics.Handler())

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.QueueWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = rt.metrics.Middleware(rt.opts.Service, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// askRequest is the shared body for retrieval and answering endpoints.
type askRequest struct {
	Question      string   `json:"question"`
	TopK          int      `json:"top_k"`
	Collections   []string `json:"collections"`
	TargetAntigen string   `json:"target_antigen"`
	YearMin       int      `json:"year_min"`
	YearMax       int      `json:"year_max"`
	ExpandQuery   *bool    `json:"expand_query"`
	SessionID     string   `json:"session_id"`
}

func (req askRequest) options() domain.RetrieveOptions {
	// Expansion is on unless the caller switches it off.
	expand := true
	if req.ExpandQuery != nil {
		expand = *req.ExpandQuery
	}
	return domain.RetrieveOptions{
		Filters: domain.Filters{
			TargetAntigen: req.TargetAntigen,
			YearMin:       req.YearMin,
			YearMax:       req.YearMax,
		},
		TopK:        req.TopK,
		Collections: req.Collections,
		ExpandQuery: expand,
		SessionID:   req.SessionID,
	}
}

func decodeAskRequest(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return req, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return req, false
	}
	return req, true
}

func (rt *Router) listCollections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	type collectionInfo struct {
		Name          string  `json:"name"`
		Label         string  `json:"label"`
		Weight        float64 `json:"weight"`
		AntigenFilter bool    `json:"antigen_filter"`
		YearField     string  `json:"year_field,omitempty"`
		Rows          int64   `json:"rows"`
	}

	out := make([]collectionInfo, 0, rt.registry.Len())
	for _, col := range rt.registry.All() {
		info := collectionInfo{
			Name:          col.Name,
			Label:         col.Label,
			Weight:        col.Weight,
			AntigenFilter: col.AntigenFilter,
			YearField:     col.YearField,
		}
		// Row counts are best effort; an unreachable store must not
		// break the listing.
		rows, err := rt.store.CollectionRowCount(r.Context(), col.Name)
		if err != nil {
			rows = -1
		}
		info.Rows = rows
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), req.Question, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	rt.metrics.RecordRetrieval(rt.opts.Service, "evidence", len(result.Hits), time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	answer, err := rt.answers.Answer(r.Context(), req.Question, req.options())
	if err != nil {
		rt.metrics.RecordAnswer(rt.opts.Service, "", "error", time.Since(start))
		writeError(w, err)
		return
	}
	rt.metrics.RecordAnswer(rt.opts.Service, answer.Mode, "success", time.Since(start))
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) queryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	answer, err := rt.answers.AnswerStream(r.Context(), req.Question, req.options(), func(evidence *domain.AgentAnswer) {
		_ = stream.sendEvent(streamEvent{Type: "evidence", Content: evidence})
	}, func(token string) {
		_ = stream.sendEvent(streamEvent{Type: "token", Content: token})
	})
	if err != nil {
		rt.metrics.RecordAnswer(rt.opts.Service, "", "error", time.Since(start))
		_ = stream.sendEvent(streamEvent{Type: "error", Error: err.Error()})
		stream.sendDone()
		return
	}
	rt.metrics.RecordAnswer(rt.opts.Service, answer.Mode, "success", time.Since(start))
	_ = stream.sendEvent(streamEvent{Type: "done", Content: answer})
	stream.sendDone()
}

func (rt *Router) compare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, resolved, err := rt.retriever.RetrieveComparative(r.Context(), req.Question, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	if !resolved {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "could not resolve two comparison entities from the question",
		})
		return
	}
	rt.metrics.RecordRetrieval(rt.opts.Service, "comparative", result.TotalHits(), time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) related(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Entity string `json:"entity"`
		TopK   int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Entity) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity is required"})
		return
	}

	start := time.Now()
	groups, err := rt.retriever.FindRelated(r.Context(), req.Entity, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}

	total := 0
	for _, hits := range groups {
		total += len(hits)
	}
	rt.metrics.RecordRetrieval(rt.opts.Service, "related", total, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":  req.Entity,
		"results": groups,
	})
}

func (rt *Router) knowledgeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"knowledge_graph": rt.graph.Stats(),
		"query_expansion": rt.expander.Stats(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
