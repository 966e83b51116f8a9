// Package api provides the HTTP API server for escopt
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/report"
	"esco-optimizer/internal/service"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/platform"
	"esco-optimizer/pkg/units"
	"esco-optimizer/source"
)

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	optimizer  *service.Optimizer
	metrics    *Metrics
	config     *Config
	version    string
	startTime  time.Time
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxRequestSize  int64
	CORSOrigins     []string
	APIKey          string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    90 * time.Second,
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRequestSize:  1 << 20,
		CORSOrigins:     []string{"*"},
	}
}

// NewServer creates a new API server
func NewServer(optimizer *service.Optimizer, config *Config, version string) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = 1 << 20
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	return &Server{
		optimizer: optimizer,
		metrics:   NewMetrics(),
		config:    config,
		version:   version,
		startTime: time.Now(),
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/version", s.handleVersion)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		r.Post("/recommendations", s.handleRecommend)
		r.Get("/offers", s.handleOffers)
		r.Get("/utility", s.handleUtility)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Info().
		Int("port", s.config.Port).
		Str("version", s.version).
		Str("source", s.optimizer.Source().Name()).
		Msg("Starting escopt API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		log.Info().Msg("Shutting down server")
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "escopt",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if p, ok := s.optimizer.Source().(source.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Offer source not ready")
			s.jsonError(w, http.StatusServiceUnavailable, "offer source not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"version": s.version,
	})
}

// =============================================================================
// RECOMMENDATION ENDPOINT
// =============================================================================

// RecommendRequest is the API request for a recommendation
type RecommendRequest struct {
	ZipCode         string              `json:"zip_code"`
	UsageKWh        decimal.Decimal     `json:"usage_kwh"`
	UsageUnit       string              `json:"usage_unit,omitempty"`
	Preferences     scoring.Preferences `json:"preferences"`
	UtilityOverride string              `json:"utility_override,omitempty"`
	TopK            int                 `json:"top_k,omitempty"`
	IncludeAll      bool                `json:"include_all,omitempty"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	unit, err := units.ParseUnit(req.UsageUnit)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TopK < 0 {
		s.jsonError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	result, err := s.optimizer.Optimize(r.Context(), service.Request{
		ZipCode:         req.ZipCode,
		UsageKWh:        units.ToKWh(req.UsageKWh, unit),
		Preferences:     req.Preferences,
		UtilityOverride: req.UtilityOverride,
		TopK:            req.TopK,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}

	decision := ""
	if result.Review != nil {
		decision = string(result.Review.Decision)
	}
	s.metrics.Recommendation(decision, result.Stats.Eligible)

	s.jsonResponse(w, http.StatusOK, toResponse(result, req.IncludeAll))
}

// RecommendResponse is the API response for a recommendation
type RecommendResponse struct {
	report.JSONOutput
	Stats service.Stats `json:"stats"`
}

func toResponse(res *service.Result, includeAll bool) RecommendResponse {
	return RecommendResponse{
		JSONOutput: report.NewJSONOutput(res, report.Options{ShowAll: includeAll}),
		Stats:      res.Stats,
	}
}

// =============================================================================
// OFFER ENDPOINTS
// =============================================================================

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	zip := r.URL.Query().Get("zip")
	offers, fetched, err := s.optimizer.Eligible(r.Context(), zip)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"zip_code": strings.TrimSpace(zip),
		"fetched":  fetched,
		"eligible": len(offers),
		"offers":   offers,
	})
}

func (s *Server) handleUtility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	territory, err := s.optimizer.Territory(r.Context(), q.Get("zip"), q.Get("override"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, territory)
}

// =============================================================================
// HELPERS
// =============================================================================

// StatusFor maps pipeline errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidUsage), errors.Is(err, apperrors.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNoOffers), errors.Is(err, apperrors.ErrNoEligibleOffers):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrSourceFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	code := "INTERNAL"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	s.metrics.Failure(code)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("Recommendation failed")
	}
	s.jsonResponse(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
