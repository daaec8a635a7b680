// Package main runs the e-submission HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/esubmit/internal/app"
	"github.com/dharsanguruparan/esubmit/internal/config"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("init application")
	}
	defer a.Close()

	if cfg.Auth.SeedSampleForm {
		if _, err := a.Services.Forms.SeedSample(ctx); err != nil {
			logger.WithError(err).Warn("seed sample form")
		}
	}

	srv := server.New(cfg.Address, a.API().Handler(), a.Sessions, cfg.Auth.SweepSchedule, logger)
	logger.WithField("backend", a.Backend()).Info("esubmit starting")
	if err := srv.Serve(ctx); err != nil {
		logger.WithError(err).Error("server stopped")
		a.Close()
		os.Exit(1)
	}
}
