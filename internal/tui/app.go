// Package tui is the terminal front end: a session sidebar, the transcript
// and an input box. It renders controller snapshots and turns key presses
// into controller intents; it never mutates chat state itself.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"SessionChat/internal/controller"
	"SessionChat/internal/session"
)

const (
	sidebarWidth = 32
	inputHeight  = 3
	// header, typing indicator and status line
	chromeHeight = 3
)

type focus int

const (
	focusInput focus = iota
	focusSidebar
)

// stateMsg carries a controller snapshot into the update loop
type stateMsg controller.State

// opDoneMsg reports the outcome of a controller operation
type opDoneMsg struct {
	op  string
	err error
}

// Options configures the terminal UI
type Options struct {
	// ConfirmDelete asks y/n before deleting a session
	ConfirmDelete bool
	// SessionID is loaded once the session list is available
	SessionID string
	// Backend is shown in the header
	Backend string
	Now     func() time.Time
}

type Model struct {
	ctx     context.Context
	ctrl    *controller.Controller
	updates <-chan controller.State
	cancel  func()

	state      controller.State
	input      textarea.Model
	viewport   viewport.Model
	spinner    spinner.Model
	focus      focus
	cursor     int
	offset     int
	confirming string // session awaiting delete confirmation
	status     string
	width      int
	height     int
	opts       Options
	quitting   bool
}

// New builds the UI model and subscribes it to ctrl
func New(ctx context.Context, ctrl *controller.Controller, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message... (Enter to send, Alt+Enter for a new line)"
	ta.Focus()
	ta.CharLimit = 8000
	ta.ShowLineNumbers = false
	ta.Prompt = "▍ "
	ta.SetHeight(inputHeight)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	updates, cancel := ctrl.Subscribe()

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		updates:  updates,
		cancel:   cancel,
		state:    ctrl.State(),
		input:    ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		opts:     opts,
		width:    120,
		height:   30,
	}
	m.resize()
	return m
}

// Close stops the snapshot subscription
func (m Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Run drives the UI until the user quits
func Run(ctx context.Context, ctrl *controller.Controller, opts Options) error {
	m := New(ctx, ctrl, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		listenForState(m.updates),
		m.run("initialize", m.ctrl.Initialize),
	)
}

// listenForState waits for the next controller snapshot
func listenForState(ch <-chan controller.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

// run executes a blocking controller call off the update loop
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) send(text string) tea.Cmd {
	return m.run("send", func(ctx context.Context) error {
		return m.ctrl.SendMessage(ctx, text)
	})
}

func (m Model) load(sessionID string) tea.Cmd {
	return m.run("load", func(ctx context.Context) error {
		return m.ctrl.LoadSession(ctx, sessionID)
	})
}

func (m Model) remove(sessionID string) tea.Cmd {
	return m.run("delete", func(ctx context.Context) error {
		_, err := m.ctrl.RequestDelete(ctx, sessionID)
		return err
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshTranscript(false)
		return m, nil

	case stateMsg:
		prev := m.state
		m.state = controller.State(msg)
		m.clampCursor()
		follow := len(prev.Messages) != len(m.state.Messages) || prev.Pending != m.state.Pending
		m.refreshTranscript(follow)
		return m, listenForState(m.updates)

	case opDoneMsg:
		return m.handleDone(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.confirming != "" {
			return m.updateConfirm(msg)
		}
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+n":
			m.ctrl.NewChat()
			m.status = ""
			return m, nil
		case "tab":
			m.toggleFocus()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.focus == focusSidebar {
			return m.updateSidebar(msg)
		}
		return m.updateInput(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
	} else if msg.op != "initialize" {
		m.status = ""
	}

	if msg.op == "initialize" && m.opts.SessionID != "" {
		id := m.opts.SessionID
		m.opts.SessionID = ""
		return m, m.load(id)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.state.Pending {
			return m, nil
		}
		m.input.Reset()
		return m, m.send(text)

	case "alt+enter":
		m.input.InsertString("\n")
		return m, nil

	case "1", "2", "3":
		if m.input.Value() == "" && len(m.state.Messages) == 0 && !m.state.Pending {
			s := suggestions[int(msg.String()[0]-'1')]
			return m, m.send(s.Prompt)
		}
	}

	if m.state.Pending {
		// input stays frozen until the reply arrives
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sessions := m.state.Sessions
	switch msg.String() {
	case "esc":
		m.toggleFocus()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.clampCursor()
		}

	case "down", "j":
		if m.cursor < len(sessions)-1 {
			m.cursor++
			m.clampCursor()
		}

	case "enter":
		if len(sessions) > 0 {
			return m, m.load(sessions[m.cursor].SessionID)
		}

	case "n":
		m.ctrl.NewChat()

	case "d", "delete":
		if len(sessions) == 0 {
			return m, nil
		}
		id := sessions[m.cursor].SessionID
		if m.opts.ConfirmDelete {
			m.confirming = id
			return m, nil
		}
		return m, m.remove(id)
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.confirming
	switch msg.String() {
	case "y", "Y":
		m.confirming = ""
		return m, m.remove(id)
	case "n", "N", "esc":
		m.confirming = ""
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) toggleFocus() {
	if m.focus == focusInput {
		m.focus = focusSidebar
		m.input.Blur()
		return
	}
	m.focus = focusInput
	m.input.Focus()
}

func (m *Model) clampCursor() {
	n := len(m.state.Sessions)
	if m.cursor >= n {
		m.cursor = max(0, n-1)
	}
	visible := m.visibleSessions()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// visibleSessions is how many two-line sidebar entries fit
func (m Model) visibleSessions() int {
	rows := (m.height - 4) / 2
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m Model) mainWidth() int {
	w := m.width - sidebarWidth - 1
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) resize() {
	w := m.mainWidth()
	m.input.SetWidth(w)
	m.viewport.Width = w
	h := m.height - inputHeight - chromeHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Height = h
}

func (m *Model) refreshTranscript(follow bool) {
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderTyping(),
		m.input.View(),
		m.renderStatus(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("SessionChat")
	info := "new conversation"
	if id := m.state.CurrentSessionID; id != "" {
		info = "session " + truncate(id, 12)
	}
	if m.opts.Backend != "" {
		info += "  [" + m.opts.Backend + "]"
	}
	return title + dimStyle.Render(info)
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	inner := sidebarWidth - 2

	b.WriteString(titleStyle.Render("Conversations") + "\n")
	b.WriteString(newChatStyle.Render("+ New chat  ctrl+n") + "\n")

	sessions := m.state.Sessions
	if len(sessions) == 0 {
		b.WriteString(normalStyle.Render(dimStyle.Render("No conversations yet")) + "\n")
	}

	end := min(len(sessions), m.offset+m.visibleSessions())
	now := m.opts.Now()
	for i := m.offset; i < end; i++ {
		s := sessions[i]
		title := pad(truncate(s.Title, inner), inner)
		date := pad(DateLabel(s.UpdatedAt, now), inner)

		switch {
		case m.focus == focusSidebar && i == m.cursor:
			b.WriteString(selectedStyle.Render(title) + "\n")
			b.WriteString(selectedStyle.Render(date) + "\n")
		case s.SessionID == m.state.CurrentSessionID:
			b.WriteString(activeStyle.Render(title) + "\n")
			b.WriteString(normalStyle.Render(dimStyle.Render(date)) + "\n")
		default:
			b.WriteString(normalStyle.Render(title) + "\n")
			b.WriteString(normalStyle.Render(dimStyle.Render(date)) + "\n")
		}
	}

	return sidebarStyle.
		Width(sidebarWidth).
		Height(max(1, m.height-1)).
		Render(b.String())
}

func (m Model) renderTranscript() string {
	width := m.mainWidth() - 2
	if len(m.state.Messages) == 0 {
		return m.renderEmpty()
	}

	body := lipgloss.NewStyle().Width(width).PaddingLeft(1)
	var b strings.Builder
	for _, msg := range m.state.Messages {
		b.WriteString(messageHeader(msg) + "\n")
		b.WriteString(body.Render(msg.Content) + "\n\n")
	}
	return b.String()
}

func (m Model) renderEmpty() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(emptyTitleStyle.Render("How can I help you today?") + "\n")
	b.WriteString(dimStyle.Render("Start a conversation by typing a message below") + "\n\n")
	for i, s := range suggestions {
		b.WriteString(suggestionStyle.Render(fmt.Sprintf("%d  %s", i+1, s.Label)) + "\n")
	}
	return lipgloss.NewStyle().PaddingLeft(2).Render(b.String())
}

func (m Model) renderTyping() string {
	if !m.state.Pending {
		return ""
	}
	return m.spinner.View() + dimStyle.Render(" AI Assistant is typing...")
}

func (m Model) renderStatus() string {
	if m.confirming != "" {
		title := m.confirming
		for _, s := range m.state.Sessions {
			if s.SessionID == m.confirming {
				title = s.Title
			}
		}
		return confirmStyle.Render(fmt.Sprintf("Delete %q? y/n", truncate(title, 40)))
	}
	if m.status != "" {
		return errorStyle.Render(truncate(m.status, m.mainWidth()))
	}
	if m.focus == focusSidebar {
		return helpStyle.Render("  ↑/↓: move  Enter: open  d: delete  n: new  Tab: back to input")
	}
	return helpStyle.Render("  Enter: send  Alt+Enter: newline  Tab: conversations  ctrl+n: new  ctrl+c: quit")
}

// Transcript exposes the rendered messages, mostly for tests
func (m Model) Transcript() []session.Message {
	return m.state.Messages
}
