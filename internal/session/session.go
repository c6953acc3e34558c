package session

import (
	"strings"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// maxTitleRunes bounds derived session titles
const maxTitleRunes = 50

// Message represents a single chat message
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary represents a persisted conversation as listed by the history service
type Summary struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUserMessage builds a user message stamped with now
func NewUserMessage(content string, now time.Time) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: now}
}

// NewAssistantMessage builds an assistant message stamped with now
func NewAssistantMessage(content string, now time.Time) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: now}
}

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// IsUser reports whether the message was authored by the user
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// Unique returns summaries with duplicate session ids removed, keeping the
// first occurrence so the service's ordering is preserved.
func Unique(summaries []Summary) []Summary {
	seen := make(map[string]struct{}, len(summaries))
	out := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if _, ok := seen[s.SessionID]; ok {
			continue
		}
		seen[s.SessionID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Without returns summaries minus the entry for sessionID
func Without(summaries []Summary, sessionID string) []Summary {
	out := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if s.SessionID != sessionID {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether sessionID is listed
func Contains(summaries []Summary, sessionID string) bool {
	for _, s := range summaries {
		if s.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Title derives a session title from the first user message
func Title(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		return "New conversation"
	}
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes-3]) + "..."
	}
	return title
}
