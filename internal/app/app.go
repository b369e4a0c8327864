// Package app wires configuration, storage, auth and the Gmail client into
// the services the CLI and TUI drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"unclutter/internal/auth"
	"unclutter/internal/browser"
	"unclutter/internal/config"
	"unclutter/internal/gmail"
	"unclutter/internal/model"
	"unclutter/internal/rate"
	"unclutter/internal/store"
)

// ErrWhitelisted is returned when deleting a whitelisted sender.
var ErrWhitelisted = errors.New("sender is whitelisted")

type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *store.SQLiteStore
	Cache      *store.Cache
	Authorizer *auth.OAuthAuthorizer
	Creds      *auth.Cache
	Syncer     *gmail.Syncer
	Open       func(string) error
}

// New opens the database and builds the Gmail pipeline. Close releases it.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	authorizer := auth.NewOAuthAuthorizer(cfg.ConfigDir, logger)
	authorizer.OpenBrowser = browser.Open
	creds := auth.NewCache(authorizer)

	var limiter rate.Limiter = rate.Unlimited{}
	if cfg.RPS > 0 {
		limiter = rate.NewBucket(cfg.RPS)
	}

	transport := gmail.NewTransport(creds, limiter, logger)
	if cfg.APIBaseURL != "" {
		transport.BaseURL = cfg.APIBaseURL
	}
	cache := store.NewCache(db)
	syncer := gmail.NewSyncer(gmail.NewClient(transport), cache, logger)
	syncer.Options = Options(cfg)

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Cache:      cache,
		Authorizer: authorizer,
		Creds:      creds,
		Syncer:     syncer,
		Open:       browser.Open,
	}, nil
}

// Options maps configuration onto sync options.
func Options(cfg *config.Config) gmail.Options {
	opts := gmail.DefaultOptions()
	opts.PageSize = cfg.PageSize
	opts.BatchSize = cfg.BatchSize
	opts.PageDelay = cfg.PageDelay
	opts.BatchDelay = cfg.BatchDelay
	opts.ItemDelay = cfg.ItemDelay
	opts.DeleteDelay = cfg.DeleteDelay
	opts.Sequential = cfg.Sequential
	if cfg.SyncLabel != "" {
		opts.SyncQuery = gmail.Query{LabelIDs: []string{cfg.SyncLabel}}
	}
	return opts
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Login ensures a credential exists, running the consent flow if needed.
func (a *App) Login(ctx context.Context, force bool) error {
	if force {
		if err := a.Authorizer.Forget(); err != nil {
			return fmt.Errorf("forget token: %w", err)
		}
		a.Creds.Invalidate()
	}
	if _, err := a.Creds.Acquire(ctx, true); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Logout forgets the stored token and cached analysis.
func (a *App) Logout(ctx context.Context) error {
	a.Creds.Invalidate()
	if err := a.Authorizer.Forget(); err != nil {
		return fmt.Errorf("forget token: %w", err)
	}
	return a.Cache.ClearAnalysis(ctx)
}

func (a *App) LoadAnalysis(ctx context.Context) (model.AnalysisResult, bool, error) {
	return a.Cache.LoadAnalysis(ctx)
}

func (a *App) Sync(ctx context.Context, maxResults int, progress model.ProgressFunc) (model.AnalysisResult, error) {
	return a.Syncer.Sync(ctx, maxResults, progress)
}

// DeleteAllFrom refuses whitelisted senders, then deletes every message from
// email.
func (a *App) DeleteAllFrom(ctx context.Context, email string, progress model.ProgressFunc) (int, error) {
	listed, err := a.Cache.Whitelisted(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("check whitelist: %w", err)
	}
	if listed {
		return 0, fmt.Errorf("delete %s: %w", email, ErrWhitelisted)
	}
	return a.Syncer.DeleteAllFrom(ctx, email, progress)
}

func (a *App) LatestBody(ctx context.Context, rec model.SenderRecord) (string, error) {
	return a.Syncer.LatestBody(ctx, rec)
}

func (a *App) OpenUnsubscribe(rec model.SenderRecord) error {
	return gmail.OpenUnsubscribe(rec, a.Open)
}

func (a *App) Whitelist(ctx context.Context) ([]string, error) {
	return a.Cache.Whitelist(ctx)
}

// ToggleWhitelist adds email when absent and removes it otherwise. It returns
// the new membership.
func (a *App) ToggleWhitelist(ctx context.Context, email string) (bool, error) {
	removed, err := a.Cache.RemoveFromWhitelist(ctx, email)
	if err != nil || removed {
		return false, err
	}
	if _, err := a.Cache.AddToWhitelist(ctx, email); err != nil {
		return false, err
	}
	return true, nil
}
