// Package server exposes the audit dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/dashboard"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/server/filters"
	"go.miloapis.com/auditdashboard/internal/storage"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
)

// shutdownTimeout bounds how long in-flight requests may finish after the
// server context is cancelled.
const shutdownTimeout = 5 * time.Second

// Dashboard is the set of operations served over HTTP.
type Dashboard interface {
	RecentChanges(ctx context.Context, query storage.RecentChangesQuery) (*storage.RecentChangesResult, error)
	ResourceLifecycle(ctx context.Context, id lifecycle.ResourceIdentifier, opts dashboard.LifecycleOptions) (*dashboard.Timeline, error)
	Summary(ctx context.Context, query storage.CountQuery) (*storage.EventCounts, error)
	HideReadOnly(ctx context.Context, scope string) bool
	SetHideReadOnly(ctx context.Context, scope string, value bool) error
	Ready(ctx context.Context) error
}

var _ Dashboard = (*dashboard.Service)(nil)

// Config configures a Server.
type Config struct {
	// BindAddress is the host:port to listen on.
	BindAddress string
	// RequestsPerSecond limits API requests. Zero disables limiting.
	RequestsPerSecond int
	RemoteUser        filters.RemoteUserConfig
}

// Server serves the dashboard API, health checks and metrics.
type Server struct {
	dashboard Dashboard
	config    Config
	metrics   *httpMetrics
	limiter   *RateLimiter
	handler   http.Handler

	// now is replaced in tests.
	now func() time.Time
}

// New builds a Server for d.
func New(d Dashboard, config Config) *Server {
	if config.BindAddress == "" {
		config.BindAddress = ":8080"
	}
	s := &Server{
		dashboard: d,
		config:    config,
		metrics:   newHTTPMetrics(),
		limiter:   NewRateLimiter(config.RequestsPerSecond),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	s.installRoutes(mux)

	var handler http.Handler = mux
	handler = withAccessLog(handler)
	handler = filters.WithRemoteUser(handler, config.RemoteUser)
	handler = withRequestID(handler)
	s.handler = handler
	return s
}

func (s *Server) installRoutes(mux *http.ServeMux) {
	events := v1alpha1.APIPrefix + "/events"
	timeline := v1alpha1.APIPrefix + "/lifecycle/{gvk}/{namespace}/{name}"
	preference := v1alpha1.APIPrefix + "/preferences/" + preferenceHideReadOnly
	summary := v1alpha1.APIPrefix + "/summary"

	s.handleAPI(mux, "GET "+events, "list_recent_changes", s.listRecentChanges)
	s.handleAPI(mux, "GET "+timeline, "get_resource_lifecycle", s.getResourceLifecycle)
	s.handleAPI(mux, "GET "+summary, "get_summary", s.getSummary)
	s.handleAPI(mux, "GET "+preference, "get_preference", s.getPreference)
	s.handleAPI(mux, "PUT "+preference, "set_preference", s.putPreference)

	// Patterns without a method catch every other method of the same paths.
	mux.HandleFunc(events, methodNotAllowed(http.MethodGet))
	mux.HandleFunc(timeline, methodNotAllowed(http.MethodGet))
	mux.HandleFunc(summary, methodNotAllowed(http.MethodGet))
	mux.HandleFunc(preference, methodNotAllowed(http.MethodGet, http.MethodPut))

	mux.Handle("GET /healthz", s.metrics.instrument("healthz", http.HandlerFunc(s.healthz)))
	mux.Handle("GET /readyz", s.metrics.instrument("readyz", http.HandlerFunc(s.readyz)))
	mux.Handle("GET /metrics", s.metrics.handler())
}

// handleAPI registers an API route with tracing, metrics and rate limiting.
func (s *Server) handleAPI(mux *http.ServeMux, pattern, operation string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = s.limiter.wrap(handler)
	handler = s.metrics.instrument(operation, handler)
	handler = otelhttp.NewHandler(handler, operation)
	mux.Handle(pattern, handler)
}

// Handler returns the root handler with all filters applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.BindAddress, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Starting audit dashboard server", "address", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("audit dashboard server failed: %w", err)
	case <-ctx.Done():
	}

	klog.InfoS("Shutting down audit dashboard server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown audit dashboard server: %w", err)
	}
	return nil
}
