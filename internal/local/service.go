// Package local implements the history service in-process: transcripts live in
// the SQLite store and replies come from an LLM backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"SessionChat/internal/backend"
	"SessionChat/internal/history"
	"SessionChat/internal/session"
	"SessionChat/internal/store"
	"SessionChat/internal/telemetry"
)

var _ history.Client = &Service{}

// Service is a history.Client backed by a local store and backend
type Service struct {
	store   *store.Store
	backend backend.Backend
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// NewService wires a store and a reply backend into a history service
func NewService(st *store.Store, be backend.Backend, logger *slog.Logger, p *telemetry.Providers) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = telemetry.Noop()
	}
	return &Service{
		store:   st,
		backend: be,
		logger:  logger,
		tracer:  p.Tracer,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *Service) ListSessions(ctx context.Context) ([]session.Summary, error) {
	return s.store.ListSessions(ctx)
}

func (s *Service) GetSession(ctx context.Context, sessionID string) ([]session.Message, error) {
	msgs, err := s.store.Messages(ctx, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}

// SendMessage creates the session on first use, asks the backend for a reply
// to the whole transcript and persists both turns.
func (s *Service) SendMessage(ctx context.Context, text, sessionID string) (history.SendResult, error) {
	ctx, span := s.tracer.Start(ctx, "local.send_message")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return history.SendResult{}, fmt.Errorf("message is required")
	}

	var transcript []session.Message
	created := false
	if sessionID == "" {
		sessionID = s.newID()
		if err := s.store.CreateSession(ctx, sessionID, session.Title(text), s.backend.Name(), s.now()); err != nil {
			return history.SendResult{}, err
		}
		created = true
		s.logger.Info("created new session", "session_id", sessionID, "backend", s.backend.Name())
	} else {
		msgs, err := s.store.Messages(ctx, sessionID)
		if err != nil {
			return history.SendResult{}, translate(err)
		}
		transcript = msgs
	}
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.Bool("session.created", created))

	userMsg := session.NewUserMessage(text, s.now())
	transcript = append(transcript, userMsg)

	reply, err := s.backend.Reply(ctx, transcript)
	if err != nil {
		span.RecordError(err)
		if created {
			// an empty session would otherwise linger in the history list
			if delErr := s.store.DeleteSession(context.WithoutCancel(ctx), sessionID); delErr != nil {
				s.logger.Warn("failed to drop empty session", "session_id", sessionID, "error", delErr)
			}
		}
		return history.SendResult{}, fmt.Errorf("backend %s: %w", s.backend.Name(), err)
	}

	assistantMsg := session.NewAssistantMessage(reply, s.now())
	if err := s.store.AppendMessages(ctx, sessionID, userMsg, assistantMsg); err != nil {
		return history.SendResult{}, err
	}

	s.logger.Info("session saved", "session_id", sessionID, "message_count", len(transcript)+1)
	return history.SendResult{Message: assistantMsg, SessionID: sessionID}, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return translate(err)
	}
	s.logger.Info("deleted session", "session_id", sessionID)
	return nil
}

// translate maps store errors onto the history contract
func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, history.ErrNotFound)
	}
	return err
}
