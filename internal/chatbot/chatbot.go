// Package chatbot is the line-oriented front end: it reads prompts and slash
// commands from a reader and prints the conversation to a writer. It drives
// the same controller as the terminal UI.
package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"SessionChat/internal/backend"
	"SessionChat/internal/controller"
	"SessionChat/internal/session"
)

// ModelLister lists the models a backend can serve
type ModelLister interface {
	ListModels(ctx context.Context) ([]backend.OllamaModel, error)
}

// ChatBot runs a read-eval-print conversation loop
type ChatBot struct {
	ctrl    *controller.Controller
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	models  ModelLister
	current string // currently configured model, marked in /models
	backend string
}

// Options configures a ChatBot
type Options struct {
	Logger  *slog.Logger
	Backend string
	// Models enables /models when the backend can list them
	Models ModelLister
	Model  string
}

// New creates a ChatBot over ctrl reading from in and writing to out
func New(ctrl *controller.Controller, in io.Reader, out io.Writer, opts Options) *ChatBot {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ChatBot{
		ctrl:    ctrl,
		in:      in,
		out:     out,
		logger:  opts.Logger,
		models:  opts.Models,
		current: opts.Model,
		backend: opts.Backend,
	}
}

// Run starts the chat loop and returns when input ends or /quit is entered
func (cb *ChatBot) Run(ctx context.Context, sessionID string) error {
	if err := cb.ctrl.Initialize(ctx); err != nil {
		fmt.Fprintf(cb.out, "Warning: could not load conversations: %v\n", err)
	}
	if sessionID != "" {
		if err := cb.ctrl.LoadSession(ctx, sessionID); err != nil {
			fmt.Fprintf(cb.out, "Warning: could not load session %s: %v\n", sessionID, err)
		} else {
			cb.printTranscript()
		}
	}

	fmt.Fprintln(cb.out, "=== SessionChat ===")
	if cb.backend != "" {
		fmt.Fprintf(cb.out, "Backend: %s\n", cb.backend)
	}
	fmt.Fprintln(cb.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(cb.out)

	scanner := bufio.NewScanner(cb.in)
	for {
		fmt.Fprint(cb.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(cb.out, "Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.ctrl.SendMessage(ctx, input); err != nil {
			cb.logger.Error("failed to send message", "error", err)
		}
		// on failure the apology is the last message
		msgs := cb.ctrl.State().Messages
		if n := len(msgs); n > 0 && !msgs[n-1].IsUser() {
			fmt.Fprintf(cb.out, "Bot: %s\n\n", msgs[n-1].Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	fmt.Fprintln(cb.out, "Goodbye!")
	return nil
}

func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new", "/new-session":
		cb.ctrl.NewChat()
		fmt.Fprintln(cb.out, "Started a new conversation")
		return false, nil

	case "/sessions":
		if err := cb.ctrl.RefreshSessions(ctx); err != nil {
			return false, err
		}
		cb.printSessions()
		return false, nil

	case "/load":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /load <number|session-id>")
		}
		id, err := cb.resolve(parts[1])
		if err != nil {
			return false, err
		}
		if err := cb.ctrl.LoadSession(ctx, id); err != nil {
			return false, err
		}
		cb.printTranscript()
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <number|session-id>")
		}
		id, err := cb.resolve(parts[1])
		if err != nil {
			return false, err
		}
		deleted, err := cb.ctrl.RequestDelete(ctx, id)
		if err != nil {
			return false, err
		}
		if deleted {
			fmt.Fprintf(cb.out, "Deleted session %s\n", id)
		} else {
			fmt.Fprintln(cb.out, "Delete cancelled")
		}
		return false, nil

	case "/models":
		if cb.models == nil {
			fmt.Fprintln(cb.out, "The current backend cannot list models.")
			return false, nil
		}
		models, err := cb.models.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list models: %w", err)
		}
		fmt.Fprintln(cb.out, "\nAvailable models:")
		for i, model := range models {
			sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
			current := ""
			if model.Name == cb.current {
				current = " (current)"
			}
			fmt.Fprintf(cb.out, "%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
		}
		fmt.Fprintln(cb.out)
		return false, nil

	case "/help":
		fmt.Fprintln(cb.out, "Available commands:")
		fmt.Fprintln(cb.out, "  /quit, /exit          - Exit")
		fmt.Fprintln(cb.out, "  /new                  - Start a new conversation")
		fmt.Fprintln(cb.out, "  /sessions             - List saved conversations")
		fmt.Fprintln(cb.out, "  /load <n|id>          - Open a saved conversation")
		fmt.Fprintln(cb.out, "  /delete <n|id>        - Delete a saved conversation")
		if cb.models != nil {
			fmt.Fprintln(cb.out, "  /models               - List models the backend can serve")
		}
		fmt.Fprintln(cb.out, "  /help                 - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", parts[0])
	}
}

// resolve accepts a 1-based position in the last listing or a session id
func (cb *ChatBot) resolve(arg string) (string, error) {
	sessions := cb.ctrl.State().Sessions
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no conversation numbered %d", n)
		}
		return sessions[n-1].SessionID, nil
	}
	if !session.Contains(sessions, arg) {
		return "", fmt.Errorf("%s: %w", arg, controller.ErrUnknownSession)
	}
	return arg, nil
}

func (cb *ChatBot) printSessions() {
	st := cb.ctrl.State()
	if len(st.Sessions) == 0 {
		fmt.Fprintln(cb.out, "No saved conversations.")
		return
	}
	for i, s := range st.Sessions {
		marker := ""
		if s.SessionID == st.CurrentSessionID {
			marker = " *"
		}
		fmt.Fprintf(cb.out, "%d. %s  [%s]%s\n", i+1, s.Title, s.UpdatedAt.Local().Format("Jan 2 15:04"), marker)
	}
}

func (cb *ChatBot) printTranscript() {
	for _, m := range cb.ctrl.State().Messages {
		who := "Bot"
		if m.IsUser() {
			who = "You"
		}
		fmt.Fprintf(cb.out, "%s: %s\n", who, m.Content)
	}
	fmt.Fprintln(cb.out)
}
