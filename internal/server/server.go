// Package server runs the HTTP listener and the periodic session sweep until
// the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Sweeper removes expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Server hosts the HTTP handler and background maintenance.
type Server struct {
	addr     string
	handler  http.Handler
	sweeper  Sweeper
	schedule string
	log      *logrus.Entry
	once     sync.Once
	cron     *cron.Cron
}

// New returns a Server. An empty schedule disables the session sweep.
func New(addr string, handler http.Handler, sweeper Sweeper, schedule string, log *logrus.Logger) *Server {
	return &Server{
		addr:     addr,
		handler:  handler,
		sweeper:  sweeper,
		schedule: schedule,
		log:      logging.Component(log, "server"),
	}
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var startErr error
	s.once.Do(func() { startErr = s.startSweep(ctx) })
	if startErr != nil {
		return startErr
	}
	if s.cron != nil {
		defer func() { <-s.cron.Stop().Done() }()
	}

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("graceful shutdown failed")
		}
	}()
	s.log.WithField("addr", s.addr).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) startSweep(ctx context.Context) error {
	if s.sweeper == nil || s.schedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Warn("session sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("removed", n).Info("expired sessions removed")
	}
}
