package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// RunReader is the read side of the batch history.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*domain.BatchRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.BatchRun, error)
	LinkResults(ctx context.Context, runID string) ([]domain.LinkResult, error)
}

// Server is the HTTP adapter for the status endpoints.
type Server struct {
	runs   RunReader
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(runs RunReader, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runs:   runs,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /batches", s.handleListRuns)
	s.mux.HandleFunc("GET /batches/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// runResponse is the JSON shape of a batch run.
type runResponse struct {
	ID         string         `json:"id"`
	ChatID     int64          `json:"chat_id"`
	BatchName  string         `json:"batch_name"`
	StartIndex int            `json:"start_index"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
	Links      []linkResponse `json:"links,omitempty"`
}

type linkResponse struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Strategy string `json:"strategy,omitempty"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]runResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, runToResponse(&runs[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "invalid batch ID")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.logger.Error("get run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	results, err := s.runs.LinkResults(r.Context(), id)
	if err != nil {
		s.logger.Error("link results", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := runToResponse(run)
	for _, lr := range results {
		resp.Links = append(resp.Links, linkResponse{
			Index:    lr.Index,
			Label:    lr.Label,
			URL:      lr.URL,
			Category: string(lr.Category),
			Strategy: string(lr.Strategy),
			Outcome:  string(lr.Outcome),
			Attempts: lr.Attempts,
			Error:    lr.Error,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func runToResponse(run *domain.BatchRun) runResponse {
	return runResponse{
		ID:         run.ID,
		ChatID:     run.ChatID,
		BatchName:  run.BatchName,
		StartIndex: run.StartIndex,
		Total:      run.Total,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Status:     string(run.Status),
		Error:      run.Error,
		CreatedAt:  run.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  run.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
