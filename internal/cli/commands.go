package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"unclutter/internal/app"
	"unclutter/internal/gmail"
)

func newLoginCommand(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize unclutter to access your Gmail account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			a.Authorizer.Prompt = cmd.ErrOrStderr()
			a.Authorizer.Input = cmd.InOrStdin()

			if err := a.Login(cmd.Context(), force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint("Logged in."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard the stored token and authorize again")
	return cmd
}

func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token and cached analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newSyncCommand(opts *options) *cobra.Command {
	var (
		maxResults int
		top        int
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan the mailbox and rebuild the sender analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("max") {
				maxResults = a.Config.MaxResults
			}

			progress := newProgressPrinter(cmd.ErrOrStderr())
			res, err := a.Sync(cmd.Context(), maxResults, progress.report)
			progress.done()
			if err != nil {
				return explain(err)
			}
			whitelist, err := a.Whitelist(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			printSenders(cmd.OutOrStdout(), res.Senders, top, whitelist)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum messages to scan, 0 for all (default UNCLUTTER_MAX_RESULTS)")
	cmd.Flags().IntVar(&top, "top", 20, "number of senders to print")
	return cmd
}

func newSendersCommand(opts *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "senders",
		Short: "Print the cached sender analysis without contacting Gmail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, ok, err := a.LoadAnalysis(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no analysis cached yet; run `unclutter sync` first")
			}
			whitelist, err := a.Whitelist(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			printSenders(cmd.OutOrStdout(), res.Senders, top, whitelist)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "number of senders to print, 0 for all")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete EMAIL",
		Short: "Permanently delete every message from a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.ToLower(strings.TrimSpace(args[0]))
			a, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Permanently delete ALL messages from %s? This cannot be undone. [y/N] ", email)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			progress := newProgressPrinter(cmd.ErrOrStderr())
			n, err := a.DeleteAllFrom(cmd.Context(), email, progress.report)
			progress.done()
			if err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprintf("Deleted %d messages from %s.", n, email))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newWhitelistCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage senders protected from deletion",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add EMAIL...",
			Short: "Protect senders from deletion",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := setup(opts, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()
				for _, e := range args {
					added, err := a.Cache.AddToWhitelist(cmd.Context(), e)
					if err != nil {
						return err
					}
					if added {
						fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", strings.ToLower(strings.TrimSpace(e)))
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s is already whitelisted\n", strings.ToLower(strings.TrimSpace(e)))
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove EMAIL...",
			Short: "Stop protecting senders",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := setup(opts, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()
				for _, e := range args {
					removed, err := a.Cache.RemoveFromWhitelist(cmd.Context(), e)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", strings.ToLower(strings.TrimSpace(e)))
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s was not whitelisted\n", strings.ToLower(strings.TrimSpace(e)))
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show protected senders",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := setup(opts, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()
				list, err := a.Whitelist(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No whitelisted senders.")
					return nil
				}
				for _, e := range list {
					fmt.Fprintln(cmd.OutOrStdout(), e)
				}
				return nil
			},
		},
	)
	return cmd
}

// explain adds a hint for failures the user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, gmail.ErrAuthRequired):
		return fmt.Errorf("%w\nrun `unclutter login` to authorize", err)
	case errors.Is(err, gmail.ErrPermissionDenied):
		return fmt.Errorf("%w\nrun `unclutter login --force` to grant the required scopes", err)
	case errors.Is(err, gmail.ErrNothingToDelete):
		return fmt.Errorf("no messages found from that sender: %w", err)
	case errors.Is(err, app.ErrWhitelisted):
		return fmt.Errorf("%w; remove it with `unclutter whitelist remove`", err)
	}
	return err
}
