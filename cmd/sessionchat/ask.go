package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the reply on stdout.

The session the message was stored in is printed on stderr, so the
conversation can be continued with --session-id.`,
		Args: cobra.MinimumNArgs(1),
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

			ctx := cmd.Context()
			ctrl := a.controller(nil)
			if sessionID != "" {
				if err := ctrl.Initialize(ctx); err != nil {
					return err
				}
				if err := ctrl.LoadSession(ctx, sessionID); err != nil {
					return err
				}
			}

			if err := ctrl.SendMessage(ctx, strings.Join(args, " ")); err != nil {
				return err
			}

			st := ctrl.State()
			fmt.Fprintln(cmd.OutOrStdout(), st.Messages[len(st.Messages)-1].Content)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", st.CurrentSessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Continue an existing session")
	return cmd
}
