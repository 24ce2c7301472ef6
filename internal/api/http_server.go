package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"hairstudio/internal/config"
	"hairstudio/internal/domain"
	"hairstudio/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// HTTPDeps groups the collaborators of the HTTP API. Catalog, Ready and ExportDir are optional.
type HTTPDeps struct {
	Calendar domain.CalendarService
	Catalog  domain.Catalog
	Ready    func(ctx context.Context) error
	// ExportDir keeps a copy of every XLSX export when set.
	ExportDir string
}

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	calendar  domain.CalendarService
	catalog   domain.Catalog
	ready     func(ctx context.Context) error
	exportDir string
	auth      *HTTPAuth
	limiter   *rateLimiter
	handler   http.Handler
	server    *http.Server
	log       zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps HTTPDeps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		calendar:  deps.Calendar,
		catalog:   deps.Catalog,
		ready:     deps.Ready,
		exportDir: deps.ExportDir,
		auth:      NewHTTPAuth(*cfg),
		limiter:   newRateLimiter(cfg.RateLimit),
		log:       zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	srv.handler = srv.requestID(srv.logging(srv.rateLimit(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	read := func(h http.HandlerFunc) http.HandlerFunc { return s.auth.Require(PermReadCalendar, h) }
	write := func(h http.HandlerFunc) http.HandlerFunc { return s.auth.Require(PermWriteCalendar, h) }

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/services", s.handleServices)
	mux.HandleFunc("GET /api/v1/availability", s.handleListAvailability)
	mux.HandleFunc("PUT /api/v1/availability/{date}", write(s.handleSetWorkingDay))

	mux.HandleFunc("POST /api/v1/appointments", s.handleCreateAppointment)
	mux.HandleFunc("GET /api/v1/appointments", read(s.handleListAppointments))
	mux.HandleFunc("GET /api/v1/appointments/export", read(s.handleExport))
	mux.HandleFunc("GET /api/v1/appointments/{id}", read(s.handleGetAppointment))
	mux.HandleFunc("PATCH /api/v1/appointments/{id}", write(s.handleUpdateAppointment))
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", write(s.handleDeleteAppointment))
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", s.handleCancelAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/move", write(s.handleMoveAppointment))
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(s.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) clientKey(r *http.Request) string {
	if apiKey := r.Header.Get(s.auth.keys.apiKeyHeader); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// logging must wrap the mux directly so r.Pattern is visible after routing.
func (s *HTTPServer) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.ObserveHTTP(endpoint, recorder.status, dur)

		s.log.Info().
			Str("request_id", r.Header.Get(requestIDHeader)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.log.Warn().Err(err).Str("code", code).Str("path", r.URL.Path).Msg("request rejected")
	}
	writeJSON(w, status, map[string]string{"error": domain.ErrorMessage(err), "code": code})
}

func httpStatus(code string) int {
	switch code {
	case domain.CodeDateClosed, domain.CodeSlotUnavailable, domain.CodeDayHasAppointments, domain.CodeAlreadyCancelled:
		return http.StatusConflict
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidFormat, domain.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body; an empty body is accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.InvalidInput("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
