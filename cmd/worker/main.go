// Package main runs the asynq worker that delivers submission notifications.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/esubmit/internal/app"
	"github.com/dharsanguruparan/esubmit/internal/config"
	"github.com/dharsanguruparan/esubmit/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("ESUBMIT_REDIS_ADDR is required for the worker")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("init application")
	}
	defer a.Close()

	server := asynq.NewServer(a.RedisOpt(), asynq.Config{
		Concurrency: cfg.Redis.Concurrency,
		Logger:      logging.Component(logger, "asynq"),
	})
	mux := a.Processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		logger.WithError(err).Error("worker stopped")
		a.Close()
		os.Exit(1)
	}
}
