package tui

import (
	"fmt"
	"strings"
	"time"

	"SessionChat/internal/session"
)

// suggestion is a canned prompt offered on an empty chat
type suggestion struct {
	Label  string
	Prompt string
}

var suggestions = []suggestion{
	{Label: "Explain quantum computing", Prompt: "Explain quantum computing in simple terms"},
	{Label: "Write a poem about AI", Prompt: "Write a short poem about AI"},
	{Label: "Plan a healthy meal", Prompt: "Help me plan a healthy meal"},
}

// DateLabel describes how long ago t was: Today and Yesterday cover the
// first and second 24 hours, then "N days ago" up to a week.
func DateLabel(t, now time.Time) string {
	elapsed := now.Sub(t)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	days := int((elapsed + 24*time.Hour - 1) / (24 * time.Hour))

	switch {
	case days <= 1:
		return "Today"
	case days == 2:
		return "Yesterday"
	case days <= 7:
		return fmt.Sprintf("%d days ago", days-1)
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

// messageHeader is the author line shown above each message
func messageHeader(m session.Message) string {
	stamp := dimStyle.Render(m.Timestamp.Local().Format("15:04"))
	if m.IsUser() {
		return userRoleStyle.Render("You") + " " + stamp
	}
	return assistantRoleStyle.Render("AI Assistant") + " " + stamp
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 {
		return ""
	}
	if len(runes) <= width {
		return s
	}
	if width <= 2 {
		return string(runes[:width])
	}
	return string(runes[:width-2]) + ".."
}

func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
