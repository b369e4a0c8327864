// Package cli holds the unclutter command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"unclutter/internal/app"
	"unclutter/internal/config"
	"unclutter/internal/logging"
)

type options struct {
	configDir string
	logLevel  string
}

// NewRootCommand builds the command tree. Without a subcommand it starts the
// terminal UI.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "unclutter",
		Short: "Find the senders filling your Gmail and clear them out",
		Long: `unclutter scans your Gmail inbox, groups messages by sender and lets you
unsubscribe from or bulk-delete the noisiest ones while staying inside
Gmail's request quota.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "directory holding client_secret.json, token and database (env UNCLUTTER_CONFIG_DIR)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env UNCLUTTER_LOG_LEVEL)")

	root.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newSyncCommand(opts),
		newSendersCommand(opts),
		newDeleteCommand(opts),
		newWhitelistCommand(opts),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.configDir != "" {
		cfg.ConfigDir = opts.configDir
		cfg.DBPath = filepath.Join(opts.configDir, "unclutter.db")
		cfg.LogFile = filepath.Join(opts.configDir, "unclutter.log")
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup builds the App for a headless command logging to w.
func setup(opts *options, w io.Writer) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(w, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

var newApp = func(cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	return app.New(cfg, logger)
}
