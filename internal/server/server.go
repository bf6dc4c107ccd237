// Package server exposes the join and buffer algorithms over HTTP. Layers
// travel as GeoJSON FeatureCollections in both directions.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/buffer"
	"github.com/sells-group/geojoin/internal/feature"
	"github.com/sells-group/geojoin/internal/join"
	"github.com/sells-group/geojoin/internal/metrics"
	"github.com/sells-group/geojoin/internal/sink"
	"github.com/sells-group/geojoin/internal/source"
	"github.com/sells-group/geojoin/internal/spatial"
)

const defaultMaxBody = 64 << 20

// Config holds the defaults applied to requests that do not override them.
type Config struct {
	Join   join.Options
	Buffer buffer.Options
	// MaxBodyBytes caps request bodies (default 64 MiB).
	MaxBodyBytes int64
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// Server routes requests to the algorithms.
type Server struct {
	cfg     Config
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	router  chi.Router
}

// New builds a server whose collectors are registered with reg.
func New(cfg Config, reg *prometheus.Registry) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, reg: reg, metrics: metrics.New(reg)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders: []string{"X-Geojoin-Run-Id", "X-Geojoin-Matched", "X-Geojoin-Skipped"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/join", s.join)
		r.Post("/buffer", s.buffer)
	})
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type joinRequest struct {
	Source    json.RawMessage `json:"source"`
	Reference json.RawMessage `json:"reference"`
	Precision *int            `json:"precision,omitempty"`
	Index     string          `json:"index,omitempty"`
	LayerName string          `json:"layer_name,omitempty"`
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, err := decodeLayer("source", req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ref, err := decodeLayer("reference", req.Reference)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := s.cfg.Join
	opts.RunID = uuid.NewString()
	if req.Precision != nil {
		if *req.Precision < 0 || *req.Precision > 15 {
			writeError(w, http.StatusBadRequest, eris.New("precision must be between 0 and 15"))
			return
		}
		opts.Precision = *req.Precision
	}
	if req.Index != "" {
		kind, err := spatial.ParseKind(req.Index)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Index.Kind = kind
	}
	if req.LayerName != "" {
		opts.LayerName = req.LayerName
	}

	s.metrics.ActiveRuns.Inc()
	defer s.metrics.ActiveRuns.Dec()

	var body bytes.Buffer
	started := time.Now()
	res, err := join.Join(r.Context(), src, ref, sink.NewGeoJSON(nopCloser{&body}), opts)
	written := 0
	if res != nil {
		written = res.Matched
		s.metrics.Unmatched.Add(float64(res.Skipped))
	}
	s.metrics.Observe(join.NearestNeighbor.Name, written, time.Since(started).Seconds(), err)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("X-Geojoin-Run-Id", opts.RunID)
	w.Header().Set("X-Geojoin-Matched", strconv.Itoa(res.Matched))
	w.Header().Set("X-Geojoin-Skipped", strconv.Itoa(res.Skipped))
	writeGeoJSON(w, body.Bytes())
}

type bufferRequest struct {
	Input    json.RawMessage `json:"input"`
	Radius   *float64        `json:"radius,omitempty"`
	Segments *int            `json:"segments,omitempty"`
	CRS      string          `json:"crs,omitempty"`
}

func (s *Server) buffer(w http.ResponseWriter, r *http.Request) {
	var req bufferRequest
	if !s.decode(w, r, &req) {
		return
	}
	coll, err := decodeLayer("input", req.Input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := s.cfg.Buffer
	opts.RunID = uuid.NewString()
	if req.Radius != nil {
		opts.Radius = *req.Radius
	}
	if req.Segments != nil {
		opts.Segments = *req.Segments
	}
	if req.CRS != "" {
		opts.CRS = req.CRS
	}
	// Zero would select the defaults inside buffer.Run.
	if (req.Radius != nil && *req.Radius <= 0) || (req.Segments != nil && *req.Segments < 3) {
		writeError(w, http.StatusBadRequest, eris.New("radius must be positive and segments at least 3"))
		return
	}

	s.metrics.ActiveRuns.Inc()
	defer s.metrics.ActiveRuns.Dec()

	var body bytes.Buffer
	started := time.Now()
	res, err := buffer.Run(r.Context(), coll, sink.NewGeoJSON(nopCloser{&body}), opts)
	written := 0
	if res != nil {
		written = res.Features
	}
	s.metrics.Observe("buffer", written, time.Since(started).Seconds(), err)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("X-Geojoin-Run-Id", opts.RunID)
	writeGeoJSON(w, body.Bytes())
}

// decode reads a JSON request body into v, answering 400 or 413 itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return false
		}
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
		return false
	}
	return true
}

func decodeLayer(name string, raw json.RawMessage) (*feature.Collection, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, eris.Errorf("%s is required", name)
	}
	coll, err := source.DecodeGeoJSON(bytes.NewReader(raw), source.Options{})
	if err != nil {
		return nil, eris.Wrap(err, name)
	}
	if coll.Name == "" {
		coll.Name = name
	}
	return coll, nil
}

func statusFor(err error) int {
	switch {
	case join.IsInputError(err), feature.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeGeoJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
