package http

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expenses/internal/auth"
	"expenses/internal/core"
	"expenses/internal/export/xlsx"
	"expenses/internal/listing"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	appweb "expenses/web"
)

// maxBodyBytes caps request bodies on the JSON API.
const maxBodyBytes = 1 << 20

// WeekStore is what the API needs from the week service.
type WeekStore interface {
	Get(ctx context.Context, namespace, weekEnding string) (*core.ExpenseRecord, bool, error)
	MostRecent(ctx context.Context, namespace string) (*core.ExpenseRecord, bool, error)
	Save(ctx context.Context, namespace, weekEnding string, body core.ExpenseRecord) (core.ExpenseRecord, error)
	Delete(ctx context.Context, namespace, weekEnding string) error
	ListWeeks(ctx context.Context, namespace string) ([]listing.WeekSummary, error)
	ListNamespaces(ctx context.Context) ([]listing.NamespaceSummary, error)
}

// Options wires the server's collaborators. Only Weeks is needed for the
// API to serve data; everything else is optional.
type Options struct {
	Weeks          WeekStore
	Exporter       *xlsx.Exporter
	Auth           *auth.Authenticator
	Ready          func(ctx context.Context) error
	Registry       *prometheus.Registry
	TrustedProxies []string
	WritesPerMin   int
}

type Server struct {
	http.Server
	weeks    WeekStore
	exporter *xlsx.Exporter
	auth     *auth.Authenticator
	ready    func(ctx context.Context) error
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) (*Server, error) {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ips, err := security.NewIPResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	tracer, err := trace.NewMiddleware(reg, ips.ClientIP)
	if err != nil {
		return nil, err
	}

	s := &Server{
		weeks:    opts.Weeks,
		exporter: opts.Exporter,
		auth:     opts.Auth,
		ready:    opts.Ready,
	}
	if opts.WritesPerMin > 0 {
		s.limiter = ratelimit.NewLimiter(opts.WritesPerMin, 5*time.Minute)
	}

	// api wraps the data endpoints with auth and write limiting.
	api := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if s.limiter != nil {
			handler = s.limiter.Writes(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
				slog.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", ips.ClientIP(r), "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			})(handler)
		}
		return s.auth.Middleware(handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/data", api(s.handleData))
	mux.Handle("/api/weeks", api(s.handleWeeks))
	mux.Handle("/api/export.xlsx", api(s.handleExport))
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssets(3600)(static))
		mux.Handle("GET /{$}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFileFS(w, r, sub, "index.html")
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	headers := security.Headers(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:         addr,
		Handler:      tracer.Middleware(headers(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.weeks == nil {
		http.Error(w, "store not configured", http.StatusServiceUnavailable)
		return
	}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
