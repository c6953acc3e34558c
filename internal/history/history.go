// Package history defines the chat history service contract and its JSON
// over HTTP transport (client and server side).
package history

import (
	"context"
	"errors"
	"fmt"

	"SessionChat/internal/session"
)

// Client is the history service the session controller talks to
type Client interface {
	// ListSessions returns every persisted conversation, most recently updated first
	ListSessions(ctx context.Context) ([]session.Summary, error)

	// GetSession returns the transcript of one conversation
	GetSession(ctx context.Context, sessionID string) ([]session.Message, error)

	// SendMessage submits a user message; an empty sessionID asks the service
	// to start a new conversation and assign its id
	SendMessage(ctx context.Context, text, sessionID string) (SendResult, error)

	// DeleteSession removes a conversation
	DeleteSession(ctx context.Context, sessionID string) error
}

// SendResult is the service's answer to a sent message
type SendResult struct {
	Message   session.Message `json:"message"`
	SessionID string          `json:"sessionId"`
}

// ErrNotFound is reported when the service does not know a session
var ErrNotFound = errors.New("session not found")

// ServiceError represents a failed call to the history service
type ServiceError struct {
	Op     string // "list", "get", "send", "delete"
	Status int    // HTTP status, 0 when the request never completed
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("history service error [%s] status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("history service error [%s]: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
