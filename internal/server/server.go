package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ai-practice/internal/analytics"
	"ai-practice/internal/practice"
	"ai-practice/internal/sessionlog"
)

const serviceVersion = "1.0.0"

// PracticeService is the orchestration surface the HTTP layer drives.
type PracticeService interface {
	Generate(ctx context.Context, req practice.GenerateRequest) (practice.GenerateResult, error)
	Verify(ctx context.Context, req practice.VerifyRequest) (practice.VerifyResult, error)
}

// Server exposes the practice endpoints plus health and stats routes.
type Server struct {
	svc       PracticeService
	store     *sessionlog.Store
	server    *http.Server
	host      string
	port      int
	startTime time.Time
}

func New(svc PracticeService, store *sessionlog.Store, host string, port int) *Server {
	return &Server{
		svc:       svc,
		store:     store,
		host:      host,
		port:      port,
		startTime: time.Now(),
	}
}

// envelope is the fixed response wrapper of every endpoint.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Handler builds the route table. Exposed separately so tests can drive
// it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/ai/practice/generate", s.logged(s.handleGenerate))
	mux.HandleFunc("/internal/ai/practice/verify", s.logged(s.handleVerify))
	mux.HandleFunc("/api/stats", s.logged(s.handleStats))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start runs the server until Stop or a listener error. Write timeout
// leaves room for a slow LLM round trip.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("🌐 Starting practice service on http://%s:%d", s.host, s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// logged tags each request with a short correlation id.
func (s *Server) logged(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()[:8]
		start := time.Now()
		log.Printf("▶️ [%s] %s %s", reqID, r.Method, r.URL.Path)
		h(w, r)
		log.Printf("✅ [%s] %s %s finished in %s", reqID, r.Method, r.URL.Path, time.Since(start))
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	var req practice.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if req.SessionID == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Code: http.StatusBadRequest, Message: "sessionId and userId are required"})
		return
	}

	result, err := s.svc.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, "failed to generate practice", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "success", Data: result})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	var req practice.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if req.SessionID == "" || req.UserID == "" || len(req.Questions) == 0 {
		writeJSON(w, http.StatusBadRequest, envelope{Code: http.StatusBadRequest, Message: "sessionId, userId and questions are required"})
		return
	}

	result, err := s.svc.Verify(r.Context(), req)
	if err != nil {
		s.writeError(w, "failed to verify practice", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "success", Data: result})
}

// writeError maps session-state errors to 400 (the client must generate
// a fresh batch first) and everything else to 500.
func (s *Server) writeError(w http.ResponseWriter, prefix string, err error) {
	status := http.StatusInternalServerError
	if practice.IsSessionStateError(err) {
		status = http.StatusBadRequest
	}
	log.Printf("❌ %s: %v", prefix, err)
	writeJSON(w, status, envelope{Code: status, Message: fmt.Sprintf("%s: %v", prefix, err)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	stats, err := analytics.AnalyzeDaily(s.store, time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, envelope{Code: http.StatusInternalServerError, Message: fmt.Sprintf("failed to compute stats: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "success", Data: stats})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, envelope{Code: http.StatusNotFound, Message: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "AI Practice Service",
		"status":  "running",
		"version": serviceVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
