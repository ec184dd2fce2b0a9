// Package server exposes the assistant over HTTP: a streaming query
// endpoint, static document serving and health checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/agent"
	"github.com/docintel/docintel/extract"
	"github.com/docintel/docintel/graph"
	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/session"
)

// maxUploadBytes caps the size of an uploaded document.
const maxUploadBytes = 32 << 20

// Config assembles a Server.
type Config struct {
	Agent       *agent.Agent
	Sessions    *session.Manager
	APIKey      string
	DocumentDir string
	Logger      log.Logger
}

// Server handles the HTTP surface of the assistant.
type Server struct {
	agent       *agent.Agent
	sessions    *session.Manager
	apiKey      string
	documentDir string
	logger      log.Logger
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Agent == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("agent and session manager are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{
		agent:       cfg.Agent,
		sessions:    cfg.Sessions,
		apiKey:      cfg.APIKey,
		documentDir: cfg.DocumentDir,
		logger:      cfg.Logger,
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(allowCORS)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Welcome to the Document Intelligence API!",
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/query-stream", s.handleQueryStream)
	r.Delete("/v1/sessions/{sessionID}", s.handleResetSession)

	if s.documentDir != "" {
		r.Handle("/documents/*", http.StripPrefix("/documents/",
			http.FileServer(http.Dir(s.documentDir))))
	}
	return r
}

// allowCORS permits cross-origin requests from any frontend origin.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleQueryStream runs one agent turn and streams events back as SSE:
// status updates while tools run, then a final_response or error event.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid multipart form"})
		return
	}

	if r.FormValue("api_key") != s.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid API Key."})
		return
	}

	query := r.FormValue("query")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "query is required"})
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "streaming unsupported"})
		return
	}

	adHoc, err := s.uploadedText(r)
	if err != nil {
		s.logger.Error("failed to process upload: %v", err)
		sse.send(map[string]any{"type": "error", "content": fmt.Sprintf("Failed to process file: %v", err)})
		return
	}

	s.logger.Info("query for session %s", sessionID)

	_, err = s.sessions.Update(r.Context(), sessionID, func(state agent.State) (agent.State, error) {
		state.AdHocContext = adHoc
		state.Messages = append(state.Messages, llms.TextParts(llms.ChatMessageTypeHuman, query))
		return s.runTurn(r.Context(), sessionID, state, sse)
	})
	if err != nil {
		s.logger.Error("turn failed for session %s: %v", sessionID, err)
		sse.send(map[string]any{"type": "error", "content": errorContent(err)})
	}
}

// runTurn streams one agent execution, forwarding tool-start events and
// the final answer to the client. The returned state is what the session
// manager persists.
func (s *Server) runTurn(ctx context.Context, sessionID string, state agent.State, sse *sseWriter) (agent.State, error) {
	stream := s.agent.Stream(ctx, state)
	defer stream.Cancel()

	for event := range stream.Events {
		if event.Type == graph.EventToolStart {
			sse.send(map[string]any{"type": "status", "content": "Running: " + event.Tool})
		}
	}

	select {
	case final := <-stream.Result:
		answer := final.FinalAnswer()
		sse.send(map[string]any{
			"type":         "final_response",
			"session_id":   sessionID,
			"content":      answer,
			"content_html": renderHTML(answer),
			"sources":      sourcePayload(final.Sources),
		})
		return final, nil
	case err := <-stream.Errors:
		return agent.State{}, err
	}
}

func sourcePayload(sources []agent.SourceRecord) []map[string]any {
	out := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		out = append(out, map[string]any{
			"id":       src.ID,
			"content":  src.Content,
			"metadata": src.Metadata,
		})
	}
	return out
}

func errorContent(err error) string {
	if errors.Is(err, graph.ErrMaxStepsExceeded) {
		return "The agent could not reach an answer within the step limit. Please try rephrasing your question."
	}
	return fmt.Sprintf("An unexpected error occurred: %v", err)
}

// uploadedText extracts the text of an optional uploaded document.
func (s *Server) uploadedText(r *http.Request) (string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return "", err
	}
	s.logger.Info("file received: %s (%d bytes)", header.Filename, len(data))
	return extract.Bytes(data, header.Filename), nil
}

// handleResetSession clears a session's history.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-API-Key") != s.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid API Key."})
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.sessions.Reset(r.Context(), sessionID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListenAndServe starts the server on the given port.
func (s *Server) ListenAndServe(port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening on %s", srv.Addr)
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// sseWriter emits server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}
