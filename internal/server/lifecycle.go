package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run serves HTTP until ctx is cancelled, SIGINT or SIGTERM arrives, or
// the listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute, // batches are paced upstream
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpSrv.Addr, err)
	}

	// The hub outlives ctx until Shutdown has drained requests.
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRunCtx = cancel
	go s.realtimeHub.Run(bgCtx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})

	s.ready.Store(true)
	s.logger.Info("server ready",
		"addr", ln.Addr().String(),
		"storage", s.storageKind(),
		"llm", s.oracle != nil,
	)
	return g.Wait()
}

// Shutdown marks the server not ready, waits the shutdown delay so load
// balancers stop routing to it, drains HTTP, then closes every client.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown", "delay", s.shutdownDelay)
	time.Sleep(s.shutdownDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	closers := map[string]func() error{}
	if s.prober != nil {
		closers["rpc"] = s.prober.Close
	}
	if s.cache != nil {
		closers["cache"] = s.cache.Close
	}
	if s.db != nil {
		closers["database"] = s.db.Close
	}
	for name, closeFn := range closers {
		if err := closeFn(); err != nil {
			s.logger.Error("close failed", "resource", name, "error", err)
			errs = append(errs, fmt.Errorf("%s close: %w", name, err))
		}
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}
