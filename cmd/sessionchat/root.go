package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SessionChat/internal/chatbot"
	"SessionChat/internal/config"
	"SessionChat/internal/tui"
)

var version = "dev"

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath  string
	mode        string
	backend     string
	server      string
	dbPath      string
	ollamaModel string
	debug       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var (
		sessionID string
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "sessionchat",
		Short: "Chat with an LLM and keep every conversation",
		Long: `SessionChat is a terminal chat client that keeps a history of conversations.

Conversations are stored in a local SQLite database and answered by the
configured LLM backend, or kept by a remote SessionChat server.

Quick Start:
  sessionchat                          # open the chat UI
  sessionchat --plain                  # line-oriented chat on stdin/stdout
  sessionchat ask "hello"              # one question, answer on stdout
  sessionchat sessions list            # list saved conversations
  sessionchat serve                    # expose the history API over HTTP`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if sessionID != "" {
				cfg.SessionID = sessionID
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if plain {
				bot := chatbot.New(a.controller(nil), cmd.InOrStdin(), cmd.OutOrStdout(), chatbot.Options{
					Logger:  a.logger,
					Backend: cfg.Backend,
					Models:  a.models,
					Model:   cfg.OllamaModel,
				})
				return bot.Run(cmd.Context(), cfg.SessionID)
			}

			// the UI asks before deleting, so the controller does not
			return tui.Run(cmd.Context(), a.controller(nil), tui.Options{
				ConfirmDelete: cfg.ConfirmDelete,
				SessionID:     cfg.SessionID,
				Backend:       cfg.Backend,
			})
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&opts.mode, "mode", "", "History mode (local|remote)")
	pf.StringVar(&opts.backend, "backend", "", "LLM backend (ollama|anthropic|grok|openai)")
	pf.StringVar(&opts.server, "server", "", "History server URL in remote mode")
	pf.StringVar(&opts.dbPath, "db", "", "SQLite database path in local mode")
	pf.StringVar(&opts.ollamaModel, "ollama-model", "", "Ollama model specification (format: model:version)")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.Flags().StringVar(&sessionID, "session-id", "", "Load existing session by ID")
	cmd.Flags().BoolVar(&plain, "plain", false, "Use the line-oriented interface instead of the full-screen UI")

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newSessionsCmd(opts),
		newAskCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// load reads the config file and environment, then applies explicit flags
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = o.mode
	}
	if flags.Changed("backend") {
		cfg.Backend = o.backend
	}
	if flags.Changed("server") {
		cfg.ServerURL = o.server
		if !flags.Changed("mode") {
			cfg.Mode = config.ModeRemote
		}
	}
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("ollama-model") {
		cfg.OllamaModel = o.ollamaModel
	}
	if flags.Changed("debug") {
		cfg.Debug = o.debug
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
