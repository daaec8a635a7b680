// Package app assembles the stores and services from configuration. The
// server, the worker and the command line share it.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dharsanguruparan/esubmit/internal/api"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/config"
	"github.com/dharsanguruparan/esubmit/internal/database"
	"github.com/dharsanguruparan/esubmit/internal/jsonstore"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/queue"
	"github.com/dharsanguruparan/esubmit/internal/service"
	"github.com/dharsanguruparan/esubmit/internal/signing"
	"github.com/dharsanguruparan/esubmit/internal/storage"
	"github.com/dharsanguruparan/esubmit/internal/store"
	"github.com/dharsanguruparan/esubmit/internal/worker"
)

// App holds every long lived dependency.
type App struct {
	Config    *config.Config
	Log       *logrus.Logger
	DB        *gorm.DB
	JSON      *jsonstore.Store
	Stores    *store.Stores
	Sessions  *auth.Manager
	Signer    *signing.Signer
	Processor *worker.Processor
	Services  api.Services

	queue *asynq.Client
}

// New opens storage and builds the services. A database that cannot be
// reached is logged and the JSON files serve every request.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if cfg.Database.DSN != "" {
		db, err := database.Connect(ctx, cfg.Database.DSN, database.Options{
			ConnectTimeout:   cfg.Database.ConnectTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
			MaxOpenConns:     cfg.Database.MaxOpenConns,
			LogQueries:       cfg.Database.LogQueries,
		})
		if err != nil {
			log.WithError(err).Warn("database unavailable, using JSON storage only")
		} else if err := database.EnsureSchema(ctx, db); err != nil {
			log.WithError(err).Warn("schema migration failed, using JSON storage only")
			_ = database.Close(db)
		} else {
			a.DB = db
		}
	}

	js, err := jsonstore.Open(cfg.DataDir,
		jsonstore.WithShardThreshold(cfg.ShardBytes),
		jsonstore.WithLegacyFile(cfg.LegacyDBFile),
		jsonstore.WithLogger(logging.Component(log, "jsonstore")),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open json store: %w", err)
	}
	a.JSON = js
	a.Stores = store.New(a.DB, js, log)

	blobs, err := storage.New(cfg.Storage.Provider, cfg.Storage.UploadDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a.Sessions = auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, a.Stores.Sessions, log)
	a.Signer = signing.NewSigner([]byte(cfg.SigningSecret))
	a.Processor = worker.NewProcessor(a.Stores, log)
	if cfg.Redis.Addr != "" {
		a.queue = asynq.NewClient(a.RedisOpt())
	}
	notifier := queue.NewNotifier(a.queue, a.Processor, log)

	forms := service.NewForms(a.Stores, log)
	files := service.NewFiles(a.Stores, blobs, service.FileLimits{
		MaxSize:           cfg.Storage.MaxFileSize,
		AllowedExtensions: cfg.Storage.AllowedExtensions,
	}, log)
	subs := service.NewSubmissions(a.Stores, forms, files, notifier, log)
	a.Services = api.Services{
		Accounts: service.NewAccounts(a.Stores, a.Sessions, service.AccountOptions{
			BcryptCost:    cfg.Auth.BcryptCost,
			AllowRegister: cfg.Auth.AllowRegister,
		}, log),
		Forms:       forms,
		Submissions: subs,
		Files:       files,
		Payments:    service.NewPayments(a.Stores, subs, log),
	}
	return a, nil
}

// RedisOpt returns the asynq connection settings.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// Backend names the primary store: "sql" or "json".
func (a *App) Backend() string {
	if a.Stores != nil && a.Stores.SQLEnabled() {
		return "sql"
	}
	return "json"
}

// API builds the HTTP layer.
func (a *App) API() *api.Server {
	return api.New(a.Services, a.Sessions, a.Signer, api.Options{
		CORSOrigins:    a.Config.CORSOrigins,
		MaxUploadBytes: a.Config.Storage.MaxFileSize,
		SignedURLTTL:   a.Config.SignedURLTTL,
		LoginRate:      a.Config.Auth.LoginRate,
		LoginBurst:     a.Config.Auth.LoginBurst,
		Backend:        a.Backend(),
	}, a.Log)
}

// Close releases the queue client and the database handle.
func (a *App) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.Log.WithError(err).Warn("close queue client")
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			a.Log.WithError(err).Warn("close database")
		}
	}
}
