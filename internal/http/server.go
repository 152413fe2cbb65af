package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"courtsplit/internal/log"
	"courtsplit/internal/middleware/ratelimit"
	"courtsplit/internal/middleware/security"
	"courtsplit/internal/middleware/trace"
	"courtsplit/internal/services"
)

// maxBodyBytes caps settlement request bodies.
const maxBodyBytes = 1 << 20

// Options tunes a Server. Zero values fall back to defaults.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	// TrustedProxies are extra CIDRs allowed to set forwarding headers.
	TrustedProxies []string
	// ReadyCheck reports whether downstream dependencies are usable.
	ReadyCheck func(ctx context.Context) error
}

type Server struct {
	http.Server
	service    *services.SettlementService
	logger     *log.Logger
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	tracer     *trace.Middleware
	readyCheck func(ctx context.Context) error

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.SettlementService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		service:    svc,
		logger:     logger,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   detector,
		tracer:     trace.NewMiddleware(logger, detector.ExtractClientIP),
		readyCheck: opts.ReadyCheck,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/settlements", s.handleCalculate)
	api.HandleFunc("POST /api/settlements/csv", s.handleCSV)
	api.HandleFunc("POST /api/settlements/export", s.handleExport)
	api.HandleFunc("POST /api/settlements/async", s.handleEnqueue)

	mux := http.NewServeMux()
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(api)
	mux.Handle("/api/", log.ComponentMiddleware(log.ComponentSettlement)(limited))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	withRequestID := log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })
	s.Handler = headers.Middleware(log.Middleware(logger)(s.tracer.Middleware(withRequestID(s.withDetection(mux)))))
	return s
}

// withDetection logs requests that look like scans. They are still served;
// the routes only accept well-formed JSON.
func (s *Server) withDetection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// Metrics is a point-in-time view of the middleware counters.
type Metrics struct {
	Requests           int64
	ServerErrors       int64
	RateLimited        int64
	SuspiciousRequests int64
}

func (s *Server) Metrics() Metrics {
	tm := s.tracer.GetMetrics()
	return Metrics{
		Requests:           tm.TotalRequests,
		ServerErrors:       tm.ServerErrors,
		RateLimited:        s.limiter.GetMetrics().Rejected,
		SuspiciousRequests: s.detector.GetMetrics().SuspiciousRequests,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readyCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.readyCheck(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
