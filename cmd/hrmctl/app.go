package main

import (
	"context"
	"database/sql"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/adapters/zaplog"
	"github.com/goliatone/go-dashboard-auth/config"
	"github.com/goliatone/go-dashboard-auth/provider/local"
	"github.com/goliatone/go-dashboard-auth/repository"
	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// app is the wired auth stack backed by the local account database
type app struct {
	db       *bun.DB
	repos    *repository.Manager
	provider *local.Provider
	store    *auth.SessionStore
	service  *auth.AuthService
	logger   *zaplog.Logger
}

func openApp(ctx context.Context, cfg config.AppConfig, logger *zaplog.Logger) (*app, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open database")
	}
	// sqlite allows one writer, keep a single connection so in memory
	// databases are shared by every query
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	repos := repository.NewManager(db)
	if err := repos.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	provider, err := local.New(repos, local.Config{
		SigningKey:    []byte(cfg.Auth.SigningKey),
		Issuer:        cfg.Auth.Issuer,
		TokenTTL:      cfg.Auth.TokenTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
		SessionRecord: cfg.Auth.SessionRecord,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	provider.WithLogger(logger.Named("backend"))

	store := auth.NewSessionStore(
		auth.WithStorePersister(repository.NewIdentityPersister(repos.Records(), cfg.Auth.StorageName)),
		auth.WithStoreLogger(logger.Named("store")),
	)
	if err := store.Restore(ctx); err != nil {
		// a corrupt record only costs the cached identity
		logger.Warn("stored identity not restored", "error", err)
	}

	service := auth.NewAuthService(provider, store).WithLogger(logger.Named("auth"))

	return &app{
		db:       db,
		repos:    repos,
		provider: provider,
		store:    store,
		service:  service,
		logger:   logger,
	}, nil
}

func (a *app) Close() error {
	a.store.Dispose()
	return a.db.Close()
}

// withApp opens the stack for the duration of fn
func (c *cli) withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Warn("database close failed", "error", err)
		}
	}()
	return fn(a)
}
