package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leaseth/leaseth/pkg/cache"
	"github.com/leaseth/leaseth/pkg/data"
	"github.com/leaseth/leaseth/pkg/engine"
)

const (
	requestIDHeader   = "X-Request-ID"
	processTimeHeader = "X-Process-Time"
	apiKeyHeader      = "X-API-Key"

	codeBadRequest   = "BAD_REQUEST"
	codeValidation   = "VALIDATION_ERROR"
	codeNotFound     = "NOT_FOUND"
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = "INTERNAL_ERROR"
)

// apiServer wires the scoring engine, store, and decision cache behind the
// REST surface. One instance serves all requests.
type apiServer struct {
	eng     *engine.Engine
	store   *data.Store
	cache   cache.DecisionCache
	apiKey  string
	started time.Time
}

func newAPIServer(eng *engine.Engine, store *data.Store, dc cache.DecisionCache, apiKey string) *apiServer {
	return &apiServer{
		eng:     eng,
		store:   store,
		cache:   dc,
		apiKey:  apiKey,
		started: time.Now(),
	}
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/score", s.wrap(s.scoreHandler))
	mux.HandleFunc("POST /api/v1/thresholds", s.wrap(s.thresholdsHandler))
	mux.HandleFunc("POST /api/v1/feedback", s.wrap(s.feedbackHandler))
	mux.HandleFunc("GET /api/v1/health", s.wrap(s.healthHandler))
	mux.HandleFunc("GET /api/v1/models", s.wrap(s.modelsHandler))
	mux.HandleFunc("GET /api/v1/scores", s.wrap(s.scoresHandler))
	mux.HandleFunc("GET /api/v1/scores/stats", s.wrap(s.statsHandler))
	mux.HandleFunc("/", s.wrap(s.notFoundHandler))

	return mux
}

type apiEnvelope struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ctxKey struct{}

func traceID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

func newTraceID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

// timingWriter stamps the processing time header when the first byte of
// the response goes out.
type timingWriter struct {
	http.ResponseWriter
	start time.Time
	wrote bool
}

func (w *timingWriter) WriteHeader(status int) {
	if !w.wrote {
		w.wrote = true
		w.Header().Set(processTimeHeader, fmt.Sprintf("%.4f", time.Since(w.start).Seconds()))
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// wrap is the middleware applied to every route: request ID propagation,
// processing-time header, and the API key check when a key is configured.
func (s *apiServer) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newTraceID()
		}

		tw := &timingWriter{ResponseWriter: w, start: time.Now()}
		tw.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		if s.apiKey != "" && r.Header.Get(apiKeyHeader) != s.apiKey {
			s.respondError(tw, r, http.StatusUnauthorized, codeUnauthorized, "missing or invalid API key")
			return
		}

		h(tw, r)
	}
}

func (s *apiServer) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, apiEnvelope{
		Success:   true,
		RequestID: traceID(r.Context()),
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (s *apiServer) respondError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeEnvelope(w, status, apiEnvelope{
		Success:   false,
		RequestID: traceID(r.Context()),
		Timestamp: time.Now().UTC(),
		Error:     &apiError{Code: code, Message: msg},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env apiEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondFromError maps engine and store failures onto the HTTP contract:
// rejected input 422, unknown records 404, everything else 500.
func (s *apiServer) respondFromError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		s.respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
	case errors.Is(err, data.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, codeNotFound, err.Error())
	default:
		slog.Error("request failed", "request_id", traceID(r.Context()), "error", err)
		s.respondError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

type scoreRequest struct {
	engine.ApplicantRecord
	CustomThresholds *engine.ThresholdSet `json:"custom_thresholds,omitempty"`
}

func (s *apiServer) scoreHandler(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "malformed JSON body")
		return
	}

	var opts *engine.ScoreOptions
	if req.CustomThresholds != nil {
		opts = &engine.ScoreOptions{Thresholds: req.CustomThresholds}
	}

	key := cache.Key(req.ApplicantRecord, opts)
	if cached, err := s.cache.Get(r.Context(), key); err != nil {
		slog.Warn("cache read failed", "error", err)
	} else if cached != nil {
		slog.Debug("cache hit", "request_id", cached.RequestID)
		s.respond(w, r, http.StatusOK, cached)
		return
	}

	res, err := s.eng.ScoreApplicant(req.ApplicantRecord, opts)
	if err != nil {
		s.respondFromError(w, r, err)
		return
	}

	if err := s.store.SaveDecision(r.Context(), req.ApplicantRecord, res); err != nil {
		slog.Warn("decision not persisted", "request_id", res.RequestID, "error", err)
	} else if err := s.store.InsertAudit(r.Context(), data.AuditActionScore, res.RequestID); err != nil {
		slog.Warn("audit entry not recorded", "request_id", res.RequestID, "error", err)
	}

	if err := s.cache.Set(r.Context(), key, res); err != nil {
		slog.Warn("cache write failed", "error", err)
	}

	s.respond(w, r, http.StatusOK, res)
}

func (s *apiServer) thresholdsHandler(w http.ResponseWriter, r *http.Request) {
	var in engine.DynamicInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "malformed JSON body")
		return
	}

	res, err := s.eng.ComputeThresholds(in)
	if err != nil {
		s.respondFromError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusOK, res)
}

type feedbackRequest struct {
	RequestID     string `json:"request_id"`
	ActualDefault bool   `json:"actual_default"`
	Notes         string `json:"notes,omitempty"`
}

func (s *apiServer) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "malformed JSON body")
		return
	}
	if req.RequestID == "" {
		s.respondError(w, r, http.StatusUnprocessableEntity, codeValidation, "request_id is required")
		return
	}

	if err := s.store.SaveFeedback(r.Context(), req.RequestID, req.ActualDefault, req.Notes); err != nil {
		s.respondFromError(w, r, err)
		return
	}
	if err := s.store.InsertAudit(r.Context(), data.AuditActionFeedback, req.RequestID); err != nil {
		slog.Warn("audit entry not recorded", "request_id", req.RequestID, "error", err)
	}

	row, err := s.store.GetFeedback(r.Context(), req.RequestID)
	if err != nil {
		s.respondFromError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusOK, row)
}

type healthStatus struct {
	Status        string   `json:"status"`
	Database      string   `json:"database"`
	Models        []string `json:"models"`
	UptimeSeconds float64  `json:"uptime_seconds"`
}

func (s *apiServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	h := healthStatus{
		Status:        "ok",
		Database:      "ok",
		UptimeSeconds: time.Since(s.started).Seconds(),
	}

	for _, m := range s.eng.Registry().Handles() {
		h.Models = append(h.Models, m.Version)
	}

	if err := s.store.Ping(r.Context()); err != nil {
		slog.Warn("health check database ping failed", "error", err)
		h.Status = "degraded"
		h.Database = "unreachable"
	}

	s.respond(w, r, http.StatusOK, h)
}

type modelInfo struct {
	Version      string    `json:"version"`
	Variant      string    `json:"variant"`
	Algorithm    string    `json:"algorithm"`
	Fingerprint  string    `json:"fingerprint"`
	FeatureCount int       `json:"num_features"`
	TrainedAt    time.Time `json:"trained_at"`
	LoadedAt     time.Time `json:"loaded_at"`
}

func (s *apiServer) modelsHandler(w http.ResponseWriter, r *http.Request) {
	handles := s.eng.Registry().Handles()

	models := make([]modelInfo, 0, len(handles))
	for _, m := range handles {
		models = append(models, modelInfo{
			Version:      m.Version,
			Variant:      m.Variant.String(),
			Algorithm:    m.Algorithm,
			Fingerprint:  m.Fingerprint,
			FeatureCount: len(m.Features),
			TrainedAt:    m.TrainedAt,
			LoadedAt:     m.LoadedAt,
		})
	}

	s.respond(w, r, http.StatusOK, models)
}

func (s *apiServer) scoresHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryParamInt(r, "limit", 0)

	list, err := s.store.GetRecentScores(r.Context(), limit)
	if err != nil {
		s.respondFromError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusOK, list)
}

func (s *apiServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetScoreStats(r.Context())
	if err != nil {
		s.respondFromError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusOK, stats)
}

func (s *apiServer) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, r, http.StatusNotFound, codeNotFound,
		fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil || i < 1 {
		slog.Debug("ignoring bad query param", "key", key, "value", v)
		return def
	}
	return i
}
