package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"SessionChat/internal/session"
	"SessionChat/internal/tui"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(
		newSessionsListCmd(opts),
		newSessionsShowCmd(opts),
		newSessionsDeleteCmd(opts),
	)
	return cmd
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl := a.controller(nil)
			if err := ctrl.RefreshSessions(cmd.Context()); err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), ctrl.State().Sessions, time.Now())
			return nil
		},
	}
}

func newSessionsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl := a.controller(nil)
			if err := ctrl.Initialize(cmd.Context()); err != nil {
				return err
			}
			if err := ctrl.LoadSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), ctrl.State().Messages)
			return nil
		},
	}
}

func newSessionsDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var confirm func(string) bool
			if cfg.ConfirmDelete && !yes {
				confirm = promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			deleted, err := a.controller(confirm).RequestDelete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

// promptConfirm asks on out and reads a y/N answer from in
func promptConfirm(in io.Reader, out io.Writer) func(string) bool {
	reader := bufio.NewReader(in)
	return func(sessionID string) bool {
		fmt.Fprintf(out, "Delete session %s? [y/N] ", sessionID)
		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func printSessions(out io.Writer, sessions []session.Summary, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved conversations.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.SessionID, s.Title, tui.DateLabel(s.UpdatedAt, now))
	}
	w.Flush()
}

func printTranscript(out io.Writer, messages []session.Message) {
	for _, m := range messages {
		who := "AI Assistant"
		if m.IsUser() {
			who = "You"
		}
		fmt.Fprintf(out, "%s (%s)\n%s\n\n", who, m.Timestamp.Local().Format("15:04"), m.Content)
	}
}
