package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"unclutter/internal/logging"
	"unclutter/internal/tui"
)

// runTUI authorizes on the plain terminal first, then hands the screen to
// bubbletea. Logs go to the log file while the UI owns the terminal.
func runTUI(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, closer, err := logging.OpenFile(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Authorizer.Prompt = cmd.ErrOrStderr()
	a.Authorizer.Input = cmd.InOrStdin()

	ctx := cmd.Context()
	if err := a.Login(ctx, false); err != nil {
		return explain(err)
	}

	appModel := tui.NewAppModel(ctx, a, cfg.MaxResults)
	p := tea.NewProgram(&appModel,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()))
	appModel.SetProgram(p)
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return explain(m.Err)
	}
	return nil
}
