package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"SessionChat/internal/controller"
	"SessionChat/internal/history"
	"SessionChat/internal/session"
)

var now = time.Date(2025, 5, 10, 15, 0, 0, 0, time.UTC)

type stubService struct {
	mu       sync.Mutex
	sessions []session.Summary
	sent     []string
	deleted  []string
}

func (s *stubService) ListSessions(ctx context.Context) ([]session.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Summary(nil), s.sessions...), nil
}

func (s *stubService) GetSession(ctx context.Context, id string) ([]session.Message, error) {
	return []session.Message{
		session.NewUserMessage("stored question", now),
		session.NewAssistantMessage("stored answer", now),
	}, nil
}

func (s *stubService) SendMessage(ctx context.Context, text, id string) (history.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	if id == "" {
		id = "S1"
	}
	return history.SendResult{Message: session.NewAssistantMessage("reply to "+text, now), SessionID: id}, nil
}

func (s *stubService) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	s.sessions = session.Without(s.sessions, id)
	return nil
}

func newTestModel(t *testing.T, svc *stubService, opts Options) (Model, *controller.Controller) {
	t.Helper()
	ctrl := controller.New(svc, controller.Options{Now: func() time.Time { return now }})
	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	opts.Now = func() time.Time { return now }
	m := New(context.Background(), ctrl, opts)
	t.Cleanup(m.Close)
	return m, ctrl
}

// update feeds msg through the model and runs any resulting command once
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m, nil
	}
	out := cmd()
	if out != nil {
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m, out
}

// applyState delivers a snapshot without waiting on the subscription
func applyState(m Model, st controller.State) Model {
	next, _ := m.Update(stateMsg(st))
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDateLabel(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"just now", now, "Today"},
		{"this morning", now.Add(-6 * time.Hour), "Today"},
		{"exactly one day", now.Add(-24 * time.Hour), "Today"},
		{"a day and a bit", now.Add(-25 * time.Hour), "Yesterday"},
		{"three days", now.Add(-60 * time.Hour), "2 days ago"},
		{"six days", now.Add(-6*24*time.Hour - time.Hour), "6 days ago"},
		{"two weeks", time.Date(2025, 4, 26, 12, 0, 0, 0, time.Local), "Apr 26, 2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DateLabel(tt.at, now); got != tt.want {
				t.Errorf("DateLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello world", 7); got != "hello.." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestModel_EnterSends(t *testing.T) {
	svc := &stubService{}
	m, ctrl := newTestModel(t, svc, Options{})

	m.input.SetValue("  Hello  ")
	m, out := update(t, m, key("enter"))

	done, ok := out.(opDoneMsg)
	if !ok || done.op != "send" || done.err != nil {
		t.Fatalf("enter produced %#v, want successful send", out)
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	if len(svc.sent) != 1 || svc.sent[0] != "Hello" {
		t.Errorf("service received %v", svc.sent)
	}

	m = applyState(m, ctrl.State())
	view := m.renderTranscript()
	for _, want := range []string{"You", "AI Assistant", "reply to Hello"} {
		if !strings.Contains(view, want) {
			t.Errorf("transcript missing %q", want)
		}
	}
}

func TestModel_BlankEnterIgnored(t *testing.T) {
	svc := &stubService{}
	m, _ := newTestModel(t, svc, Options{})

	m.input.SetValue("   ")
	_, cmd := m.Update(key("enter"))
	if cmd != nil {
		t.Error("blank input produced a command")
	}
}

func TestModel_PendingBlocksInput(t *testing.T) {
	m, ctrl := newTestModel(t, &stubService{}, Options{})

	st := ctrl.State()
	st.Pending = true
	m = applyState(m, st)

	m.input.SetValue("next")
	if _, cmd := m.Update(key("enter")); cmd != nil {
		t.Error("enter while pending produced a command")
	}
	if !strings.Contains(m.renderTyping(), "typing") {
		t.Error("typing indicator not shown while pending")
	}
}

func TestModel_SuggestionKeys(t *testing.T) {
	svc := &stubService{}
	m, _ := newTestModel(t, svc, Options{})

	if !strings.Contains(m.renderTranscript(), "How can I help you today?") {
		t.Error("empty chat does not show the welcome text")
	}

	_, out := update(t, m, key("2"))
	if done, ok := out.(opDoneMsg); !ok || done.err != nil {
		t.Fatalf("suggestion key produced %#v", out)
	}
	if len(svc.sent) != 1 || svc.sent[0] != suggestions[1].Prompt {
		t.Errorf("service received %v, want %q", svc.sent, suggestions[1].Prompt)
	}
}

func TestModel_DeleteWithConfirmation(t *testing.T) {
	svc := &stubService{sessions: []session.Summary{
		{SessionID: "A", Title: "first", UpdatedAt: now},
		{SessionID: "B", Title: "second", UpdatedAt: now},
	}}
	m, ctrl := newTestModel(t, svc, Options{ConfirmDelete: true})
	m = applyState(m, ctrl.State())

	m, _ = update(t, m, key("tab"))
	m, _ = update(t, m, key("d"))
	if m.confirming != "A" {
		t.Fatalf("confirming = %q, want A", m.confirming)
	}
	if !strings.Contains(m.renderStatus(), "first") {
		t.Errorf("confirmation prompt = %q", m.renderStatus())
	}

	m, _ = update(t, m, key("n"))
	if m.confirming != "" || len(svc.deleted) != 0 {
		t.Fatalf("declined delete still ran: %v", svc.deleted)
	}

	m, _ = update(t, m, key("d"))
	m, out := update(t, m, key("y"))
	if done, ok := out.(opDoneMsg); !ok || done.op != "delete" || done.err != nil {
		t.Fatalf("confirm produced %#v", out)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "A" {
		t.Errorf("deleted = %v, want [A]", svc.deleted)
	}
	if session.Contains(ctrl.State().Sessions, "A") {
		t.Error("controller still lists A")
	}
}

func TestModel_StartupSession(t *testing.T) {
	svc := &stubService{sessions: []session.Summary{{SessionID: "A", Title: "first", UpdatedAt: now}}}
	m, ctrl := newTestModel(t, svc, Options{SessionID: "A"})

	m, out := update(t, m, opDoneMsg{op: "initialize"})
	if done, ok := out.(opDoneMsg); !ok || done.op != "load" || done.err != nil {
		t.Fatalf("initialize completion produced %#v", out)
	}
	if ctrl.State().CurrentSessionID != "A" {
		t.Errorf("CurrentSessionID = %q, want A", ctrl.State().CurrentSessionID)
	}
	if m.opts.SessionID != "" {
		t.Error("startup session would load twice")
	}
}

func TestModel_SidebarShowsSessions(t *testing.T) {
	var sessions []session.Summary
	for i := 0; i < 3; i++ {
		sessions = append(sessions, session.Summary{
			SessionID: fmt.Sprintf("S%d", i),
			Title:     fmt.Sprintf("conversation %d", i),
			UpdatedAt: now.Add(-time.Duration(i) * 30 * time.Hour),
		})
	}
	m, ctrl := newTestModel(t, &stubService{sessions: sessions}, Options{})
	m = applyState(m, ctrl.State())

	view := m.renderSidebar()
	for _, want := range []string{"conversation 0", "conversation 2", "Today", "Yesterday", "2 days ago"} {
		if !strings.Contains(view, want) {
			t.Errorf("sidebar missing %q", want)
		}
	}
}
