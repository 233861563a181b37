package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bdmorin/the-no-shop/internal/core"
	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/hub"
	"github.com/bdmorin/the-no-shop/internal/logging"
	"github.com/bdmorin/the-no-shop/internal/metrics"
)

// Server is the HTTP gateway: agent hook notifications come in as JSON posts,
// dashboard reads come out as JSON or the SSE event stream.
type Server struct {
	registry *core.Registry
	hub      *hub.Hub
	mux      *http.ServeMux
	addr     string
	log      *logging.Logger
}

func New(registry *core.Registry, h *hub.Hub, addr string) *Server {
	s := &Server{
		registry: registry,
		hub:      h,
		mux:      http.NewServeMux(),
		addr:     addr,
		log:      logging.New("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/sessions/start", s.handleSessionStart)
	s.mux.HandleFunc("POST /api/sessions/end", s.handleSessionEnd)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/responses", s.handleAppendResponse)
	s.mux.HandleFunc("GET /api/responses", s.handleListResponses)
	s.mux.HandleFunc("POST /api/annotations", s.handleAddAnnotation)
	s.mux.HandleFunc("DELETE /api/annotations/{id}", s.handleDeleteAnnotation)
	s.mux.HandleFunc("POST /api/sessions/{id}/annotations/drain", s.handleDrainAnnotations)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/metrics", metrics.Global().Handler())
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler wraps the mux in CORS and JSON middleware. The SSE route resets its
// own Content-Type inside the hub.
func (s *Server) Handler() http.Handler {
	return CORS(JSON(s.mux))
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler: s.Handler(),
		// Handler contexts derive from the serve context so long-lived SSE
		// streams unwind when the server stops, letting Shutdown finish
		// instead of riding out its timeout.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", map[string]interface{}{"addr": ln.Addr().String()})
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		// Serve returns the moment Shutdown begins; wait for the drain to
		// finish before reporting the server stopped.
		<-shutdownDone
		return nil
	}
	return err
}

type sessionStartRequest struct {
	SessionID      string `json:"session_id"`
	Cwd            string `json:"cwd"`
	Model          string `json:"model"`
	PermissionMode string `json:"permission_mode"`
	Source         string `json:"source"`
	TranscriptPath string `json:"transcript_path"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.registry.RegisterSession(
		req.SessionID, req.Cwd, req.Model, req.PermissionMode, req.Source, req.TranscriptPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

type sessionEndRequest struct {
	SessionID      string `json:"session_id"`
	Reason         string `json:"reason"`
	TranscriptPath string `json:"transcript_path"`
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	// Unknown ids are absorbed: the hook may fire after a restart.
	if err := s.registry.EndSession(req.SessionID, req.Reason, req.TranscriptPath); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.registry.ListSessions())
}

type appendResponseRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

func (s *Server) handleAppendResponse(w http.ResponseWriter, r *http.Request) {
	var req appendResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.registry.AppendResponse(req.SessionID, req.Role, req.Content)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if entry == nil {
		// Empty content is dropped without a ledger entry.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	json.NewEncoder(w).Encode(s.registry.ListResponses(sessionID))
}

type addAnnotationRequest struct {
	SessionID    string `json:"session_id"`
	ResponseID   string `json:"response_id"`
	SelectedText string `json:"selected_text"`
	Comment      string `json:"comment"`
}

func (s *Server) handleAddAnnotation(w http.ResponseWriter, r *http.Request) {
	var req addAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ann, err := s.registry.AddAnnotation(req.SessionID, req.ResponseID, req.SelectedText, req.Comment)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ann)
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	s.registry.DeleteAnnotation(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type drainResponse struct {
	Annotations []domain.Annotation `json:"annotations"`
	Formatted   string              `json:"formatted"`
}

func (s *Server) handleDrainAnnotations(w http.ResponseWriter, r *http.Request) {
	drained := s.registry.DrainAnnotations(r.PathValue("id"))

	json.NewEncoder(w).Encode(drainResponse{
		Annotations: drained,
		Formatted:   FormatAnnotations(drained),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"sessions":  s.registry.SessionCount(),
		"observers": s.hub.Count(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.Register(w, r)
}

// CORS allows the dashboard to be served from a different local port.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON sets the default response content type.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
