package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/metrics"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// TopReader is the slice of the metrics store the server reads.
type TopReader interface {
	TopItems(ctx context.Context, scanID int64, limit int) ([]crawler.ItemMetric, error)
}

// Server wires HTTP handlers to the metrics store.
type Server struct {
	router chi.Router
	top    TopReader
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. top may be nil,
// in which case the scan routes answer 503.
func NewServer(top TopReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{top: top, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/scans/{scan_id}/top", s.topItems)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type topItemDTO struct {
	ItemID     string   `json:"item_id"`
	Score      *int64   `json:"score"`
	ReplyCount *int64   `json:"reply_count"`
	DTSeconds  *int64   `json:"dt_seconds"`
	ScoreVPH   *float64 `json:"score_vph"`
	ReplyVPH   *float64 `json:"reply_vph"`
	Virality   float64  `json:"virality_score"`
}

func (s *Server) topItems(w http.ResponseWriter, r *http.Request) {
	if s.top == nil {
		s.writeError(w, http.StatusServiceUnavailable, "metrics store not configured")
		return
	}
	scanID, err := strconv.ParseInt(chi.URLParam(r, "scan_id"), 10, 64)
	if err != nil || scanID <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid scan_id")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.top.TopItems(r.Context(), scanID, limit)
	if err != nil {
		s.logger.Error("top items query failed", zap.Int64("scan_id", scanID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]topItemDTO, 0, len(rows))
	for _, m := range rows {
		out = append(out, topItemDTO{
			ItemID:     m.ItemID,
			Score:      m.Score,
			ReplyCount: m.ReplyCount,
			DTSeconds:  m.DTSeconds,
			ScoreVPH:   m.ScoreVPH,
			ReplyVPH:   m.ReplyVPH,
			Virality:   m.Virality,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scan_id": scanID, "items": out})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultTopLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	return limit, nil
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
