// Package api exposes the suggestion service over HTTP.
//
//	POST /search/autocomplete/   {"starting_words": "white house"} -> {"following_word": [...]}
//	GET  /healthz                store metadata and uptime
//
// Every response carries a permissive Access-Control-Allow-Origin header. The autocomplete
// endpoint always answers 200: malformed bodies, blank input, store failures and timeouts all
// degrade to an empty list so the UI never blocks. Failures are logged and flagged with the
// X-Suggest-Degraded header.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deidaraiorek/deisuggest/internal/logger"
	"github.com/deidaraiorek/deisuggest/internal/storage"
	"github.com/deidaraiorek/deisuggest/internal/suggest"
)

const (
	maxBodyBytes   = 64 << 10
	shutdownGrace  = 5 * time.Second
	degradedHeader = "X-Suggest-Degraded"
)

// Suggester is the query side of suggest.Service.
type Suggester interface {
	Suggest(ctx context.Context, raw string, k int) (suggest.Result, error)
}

// MetadataSource reports build metadata for the health endpoint.
type MetadataSource interface {
	Metadata(ctx context.Context) (map[string]string, error)
}

type Server struct {
	suggester Suggester
	meta      MetadataSource
	addr      string
	started   time.Time
	logger    *log.Logger
}

func NewServer(suggester Suggester, meta MetadataSource, addr string) *Server {
	return &Server{
		suggester: suggester,
		meta:      meta,
		addr:      addr,
		started:   time.Now(),
		logger:    logger.New("api"),
	}
}

type autocompleteRequest struct {
	StartingWords *string `json:"starting_words"`
	// Limit overrides the default number of suggestions.
	Limit int `json:"limit,omitempty"`
}

type autocompleteResponse struct {
	FollowingWord []string `json:"following_word"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Routes builds the chi router with all middleware attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(allowAnyOrigin)

	r.Post("/search/autocomplete/", s.handleAutocomplete)
	r.Post("/search/autocomplete", s.handleAutocomplete)
	r.Get("/healthz", s.handleHealth)

	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	var req autocompleteRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil || req.StartingWords == nil {
		s.logger.Debug("Ignoring malformed request", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeJSON(w, http.StatusOK, autocompleteResponse{FollowingWord: []string{}})
		return
	}

	result, err := s.suggester.Suggest(r.Context(), *req.StartingWords, req.Limit)
	if err != nil {
		reason := degradedReason(err)
		w.Header().Set(degradedHeader, reason)
		s.logger.Error("Suggestion query degraded",
			"request_id", middleware.GetReqID(r.Context()),
			"reason", reason,
			"input", *req.StartingWords,
			"err", err,
		)
	}

	suggestions := result.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, autocompleteResponse{FollowingWord: suggestions})
}

func degradedReason(err error) string {
	switch {
	case errors.Is(err, suggest.ErrTimeout):
		return "timeout"
	case errors.Is(err, storage.ErrStoreInconsistency):
		return "inconsistent"
	case errors.Is(err, storage.ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.meta == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	meta, err := s.meta.Metadata(r.Context())
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Metadata = meta
	writeJSON(w, http.StatusOK, resp)
}

// allowAnyOrigin sets the CORS headers on every response and answers preflight requests.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Expose-Headers", degradedHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}
