package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/cors"

	"splitter/internal/log"
	"splitter/internal/services"
)

// Options configures the API server. Zero values fall back to defaults.
type Options struct {
	Logger             *log.Logger
	AllowedOrigins     []string
	RateLimitPerMinute int
}

type appMetrics struct {
	started    time.Time
	requests   atomic.Int64
	created    atomic.Int64
	settled    atomic.Int64
	suspicious atomic.Int64
}

// Server is the JSON API over split sessions.
type Server struct {
	http.Server
	splits      *services.SplitService
	logger      *log.Logger
	rateLimiter *rateLimiter
	metrics     *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, splits *services.SplitService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		splits:      splits,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(opts.RateLimitPerMinute),
		metrics:     &appMetrics{started: time.Now()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /splits", s.handleCreateSplit)
	mux.HandleFunc("GET /splits/{id}", s.handleGetSplit)
	mux.HandleFunc("PUT /splits/{id}", s.handleResplit)
	mux.HandleFunc("DELETE /splits/{id}", s.handleDeleteSplit)
	mux.HandleFunc("PUT /splits/{id}/contributions/{index}", s.handleRecordContribution)
	mux.HandleFunc("POST /splits/{id}/settlement", s.handleSettle)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", log.RequestIDHeader},
		ExposedHeaders:   []string{log.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})

	var handler http.Handler = mux
	handler = s.withGuards(handler)
	handler = log.RequestMiddleware(s.logger, extractClientIP)(handler)
	handler = corsHandler.Handler(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// withGuards adds security headers, flags suspicious requests and rate
// limits mutating methods per client IP.
func (s *Server) withGuards(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.requests.Add(1)
		setSecurityHeaders(w.Header())

		clientIP := extractClientIP(r)
		if detectSuspiciousRequest(r) {
			s.metrics.suspicious.Add(1)
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request detected",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(),
				"Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:     "rate limit exceeded, please try again later",
				RequestID: log.RequestID(r.Context()),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
