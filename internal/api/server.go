package api

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
)

// Page sizes for list endpoints.
const (
	DefaultDrawLimit  = 10
	DefaultStoreLimit = 50
	MaxLimit          = 1000
)

// Loader reads one snapshot. The snapshot stores satisfy it.
type Loader[T any] interface {
	Load(ctx context.Context) (T, error)
}

// Sources are the snapshots the server reads. File-backed sources are decoded again only
// after the file changes.
type Sources struct {
	History Loader[lotto.History]
	Latest  Loader[lotto.DrawRecord]
	Active  Loader[[]lotto.StoreRecord]
	Retired Loader[[]lotto.StoreRecord]
}

// Server wires HTTP handlers to the snapshot files.
type Server struct {
	router chi.Router
	src    Sources
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(src Sources, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	src.History = withCache(src.History)
	src.Latest = withCache(src.Latest)
	src.Active = withCache(src.Active)
	src.Retired = withCache(src.Retired)
	s := &Server{src: src, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/draws", func(r chi.Router) {
			r.Get("/", s.listDraws)
			r.Get("/latest", s.latestDraw)
			r.Get("/{round}", s.getDraw)
		})
		r.Route("/stores", func(r chi.Router) {
			r.Get("/", s.listStores)
			r.Get("/retired", s.listRetired)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDraws(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultDrawLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	sorted := slices.Clone(history)
	sorted.Sort()
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total": len(history),
		"draws": sorted,
	})
}

func (s *Server) latestDraw(w http.ResponseWriter, r *http.Request) {
	if s.src.Latest != nil {
		latest, err := s.src.Latest.Load(r.Context())
		if err == nil && latest.Round > 0 {
			s.writeJSON(w, http.StatusOK, latest)
			return
		}
		if err != nil {
			s.logger.Warn("latest snapshot unreadable, using history", zap.Error(err))
		}
	}
	history, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	rec, found := history.Latest()
	if !found {
		s.writeError(w, http.StatusNotFound, "no draws recorded")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getDraw(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil || round <= 0 {
		s.writeError(w, http.StatusBadRequest, "round must be a positive integer")
		return
	}
	history, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	rec, found := history.Find(round)
	if !found {
		s.writeError(w, http.StatusNotFound, "round not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultStoreLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var tier lotto.Tier
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier = lotto.Tier(raw)
		if !slices.Contains(lotto.StoreTiers, tier) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown tier %q", raw))
			return
		}
	}
	records, ok := s.loadStores(w, r, s.src.Active)
	if !ok {
		return
	}
	ranked := RankStores(records, tier)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":  len(records),
		"stores": ranked,
	})
}

func (s *Server) listRetired(w http.ResponseWriter, r *http.Request) {
	records, ok := s.loadStores(w, r, s.src.Retired)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":  len(records),
		"stores": records,
	})
}

// RankStores orders stores by win count, either in one tier or across both when tier is empty.
// Stores without a win in the requested tier are dropped. Ties go to the most recent win.
func RankStores(records []lotto.StoreRecord, tier lotto.Tier) []lotto.StoreRecord {
	count := func(rec lotto.StoreRecord) int {
		if tier == "" {
			return len(rec.Wins.First) + len(rec.Wins.Second)
		}
		return len(rec.Wins.Rounds(tier))
	}
	out := make([]lotto.StoreRecord, 0, len(records))
	for _, rec := range records {
		if tier != "" && count(rec) == 0 {
			continue
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b lotto.StoreRecord) int {
		return cmp.Or(
			cmp.Compare(count(b), count(a)),
			cmp.Compare(b.Wins.Latest(), a.Wins.Latest()),
			cmp.Compare(a.Key(), b.Key()),
		)
	})
	return out
}

func (s *Server) loadHistory(w http.ResponseWriter, r *http.Request) (lotto.History, bool) {
	if s.src.History == nil {
		return nil, true
	}
	history, err := s.src.History.Load(r.Context())
	if err != nil {
		s.logger.Error("load history failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return nil, false
	}
	return history, true
}

func (s *Server) loadStores(w http.ResponseWriter, r *http.Request, src Loader[[]lotto.StoreRecord]) ([]lotto.StoreRecord, bool) {
	if src == nil {
		return []lotto.StoreRecord{}, true
	}
	records, err := src.Load(r.Context())
	if err != nil {
		s.logger.Error("load stores failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store registry unavailable")
		return nil, false
	}
	if records == nil {
		records = []lotto.StoreRecord{}
	}
	return records, true
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, MaxLimit), nil
}

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
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", reqID),
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

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

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
