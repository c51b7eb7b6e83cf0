// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// ReadyMarker prefixes the line logged once the listener accepts
	// connections. Process registries match on it.
	ReadyMarker = "Server running on"

	// Name is sent in the Server response header.
	Name = "testserver"

	defaultTick = 100 * time.Millisecond
)

// Server runs one http.Handler until an exit condition is met.
type Server struct {
	cfg            Config
	app            http.Handler
	logger         *log.Logger
	installSignals bool
	tick           time.Duration

	started    atomic.Bool
	shouldExit atomic.Bool
	requests   atomic.Int64
	inFlight   atomic.Int64

	addrMu sync.Mutex
	addr   net.Addr
}

// New creates a Server for app. Signal handlers are installed unless
// WithSignalHandlers(false) is given.
func New(cfg Config, app http.Handler, opts ...Option) *Server {
	s := &Server{
		cfg:            cfg,
		app:            app,
		logger:         log.NewWithOptions(os.Stderr, log.Options{Prefix: "server"}),
		installSignals: true,
		tick:           defaultTick,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.LogLevel != "" {
		if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
			s.logger.SetLevel(lvl)
		}
	}
	return s
}

// Config returns the configuration the server was created with.
func (s *Server) Config() Config { return s.cfg }

// Started reports whether the server is currently accepting connections.
func (s *Server) Started() bool { return s.started.Load() }

// TotalRequests returns how many requests the server has received.
func (s *Server) TotalRequests() int64 { return s.requests.Load() }

// Addr returns the bound listener address, or nil before Run listens.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Shutdown asks Run to exit at its next tick. It does not wait.
func (s *Server) Shutdown() {
	s.shouldExit.Store(true)
}

// Run serves until an exit condition is met and then shuts down gracefully.
// It returns nil on a normal exit.
func (s *Server) Run(ctx context.Context) (err error) {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	var sigCh chan os.Signal
	if s.installSignals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	hooks, err := s.startup(ctx)
	if err != nil {
		return err
	}
	if hooks != nil {
		defer func() {
			if shutdownErr := hooks.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
				s.logger.Error("lifespan shutdown failed", "err", shutdownErr)
				err = errors.Join(err, fmt.Errorf("lifespan shutdown: %w", shutdownErr))
				return
			}
			s.logger.Info("Application shutdown complete.")
		}()
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler(),
		IdleTimeout:       time.Duration(s.cfg.TimeoutKeepAlive) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	s.started.Store(true)
	defer s.started.Store(false)
	s.logger.Infof("%s %s://%s (Press CTRL+C to quit)", ReadyMarker, s.cfg.Scheme(), ln.Addr())

	err = s.mainLoop(ctx, sigCh, serveErr)

	s.logger.Info("Shutting down")
	if shutdownErr := s.shutdownHTTP(srv); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	return err
}

func (s *Server) startup(ctx context.Context) (Lifespan, error) {
	if s.cfg.Lifespan == LifespanOff {
		return nil, nil
	}
	hooks, ok := s.app.(Lifespan)
	if !ok {
		if s.cfg.Lifespan == LifespanOn {
			s.logger.Warn("lifespan is on but the application has no startup or shutdown hooks")
		}
		return nil, nil
	}

	s.logger.Info("Waiting for application startup.")
	if err := hooks.Startup(ctx); err != nil {
		if s.cfg.Lifespan == LifespanOn {
			return nil, fmt.Errorf("lifespan startup: %w", err)
		}
		s.logger.Error("lifespan startup failed; continuing without lifespan", "err", err)
		return nil, nil
	}
	s.logger.Info("Application startup complete.")
	return hooks, nil
}

func (s *Server) listen() (net.Listener, error) {
	addr := s.cfg.Port.JoinHost(s.cfg.Host)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	if s.cfg.IsTLS() {
		cert, certErr := tls.LoadX509KeyPair(s.cfg.SSLCertfile, s.cfg.SSLKeyfile)
		if certErr != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("load TLS key pair: %w", certErr)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	return ln, nil
}

func (s *Server) mainLoop(ctx context.Context, sigCh <-chan os.Signal, serveErr <-chan error) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			s.logger.Info("received signal", "signal", sig)
			return nil
		case err := <-serveErr:
			return fmt.Errorf("serve: %w", err)
		case <-ticker.C:
			if s.shouldExit.Load() {
				return nil
			}
			if limit, ok := s.cfg.LimitMaxRequests.Get(); ok && s.requests.Load() >= int64(limit) {
				s.logger.Info("Maximum request limit exceeded. Terminating process.", "limit", limit)
				return nil
			}
		}
	}
}

func (s *Server) shutdownHTTP(srv *http.Server) error {
	ctx := context.Background()
	if secs, ok := s.cfg.TimeoutGracefulShutdown.Get(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("graceful shutdown timed out; closing open connections")
		return srv.Close()
	}
	return err
}

func (s *Server) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)

		h := w.Header()
		if s.cfg.ServerHeader {
			h.Set("Server", Name)
		}
		if !s.cfg.DateHeader {
			h["Date"] = nil
		}
		for _, kv := range s.cfg.Headers {
			h.Add(kv[0], kv[1])
		}
		if limit, ok := s.cfg.LimitMaxRequests.Get(); ok && n >= int64(limit) {
			h.Set("Connection", "close")
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if limit, ok := s.cfg.LimitConcurrency.Get(); ok {
			if s.inFlight.Add(1) > int64(limit) {
				s.inFlight.Add(-1)
				http.Error(rec, "Service Unavailable", http.StatusServiceUnavailable)
				s.accessLog(r, rec.status)
				return
			}
			defer s.inFlight.Add(-1)
		}

		s.app.ServeHTTP(rec, r)
		s.accessLog(r, rec.status)
	})
}

func (s *Server) accessLog(r *http.Request, status int) {
	if !s.cfg.AccessLog {
		return
	}
	s.logger.Infof("%s - %q %d", r.RemoteAddr, r.Method+" "+r.URL.RequestURI()+" "+r.Proto, status)
}
