// Package server contains the local HTTP server that receives the identity provider's redirect.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows which paths it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the "METHOD /path" patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Logging logs one line per request at debug level.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("callback server request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Health answers liveness probes.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
}

// CallbackServerOpts configures a [CallbackServer].
type CallbackServerOpts struct {
	Addr         string       // host:port to listen on
	CallbackPath string       // path of the registered redirect URI
	Metrics      http.Handler // optional, mounted on /metrics
	Logger       *log.Logger
}

// CallbackServer is a short-lived HTTP server that relays the redirect fragment to the waiting login.
type CallbackServer struct {
	httpServer *http.Server
	callback   *CallbackHandler
	listener   net.Listener
	logger     *log.Logger
}

// NewCallbackServer builds the router for the callback, token, health and metrics routes.
func NewCallbackServer(opts CallbackServerOpts) *CallbackServer {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	callback := NewCallbackHandler(opts.CallbackPath)

	router := NewBasicRouter()
	router.Use(Logging(opts.Logger))
	router.Handler(callback)
	router.Handle(http.MethodGet, "/healthz", Health())
	if opts.Metrics != nil {
		router.Handle(http.MethodGet, "/metrics", opts.Metrics)
	}

	return &CallbackServer{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		callback: callback,
		logger:   opts.Logger,
	}
}

// Listen binds the listening socket so address errors surface before the browser is opened.
func (s *CallbackServer) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%w: cannot listen on %s: %v", shared.ErrServiceUnavailable, s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before [CallbackServer.Listen].
func (s *CallbackServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *CallbackServer) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("callback server listening", "addr", s.Addr())
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down callback server", "error", err)
		return err
	}
	return nil
}

// Result returns the channel that receives the redirect fragment exactly once.
func (s *CallbackServer) Result() <-chan CallbackResult {
	return s.callback.Result()
}
