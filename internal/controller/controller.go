// Package controller owns the state of one chat view: the active transcript,
// the cached session list, the active session id and the pending-send flag.
//
// Every public operation is a state transition. Blocking operations take a
// context and are expected to run off the UI goroutine; they never panic and
// either complete their transition or report and leave state untouched.
// Results of superseded requests are discarded using per-kind sequence
// numbers, so the last issued request wins rather than the last to complete.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SessionChat/internal/history"
	"SessionChat/internal/session"
	"SessionChat/internal/telemetry"
)

// ApologyMessage replaces the assistant reply when a send fails
const ApologyMessage = "Sorry, there was an error processing your message. Please try again."

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrSendInFlight   = errors.New("a message is already being sent")
	ErrEmptySessionID = errors.New("session id is empty")
	ErrUnknownSession = errors.New("unknown session")
	ErrEmptyReply     = errors.New("service returned an empty reply")
)

// ConfirmFunc decides whether a requested delete should go ahead
type ConfirmFunc func(sessionID string) bool

// Options configures a Controller; the zero value is usable
type Options struct {
	Logger    *slog.Logger
	Telemetry *telemetry.Providers

	// Confirm gates RequestDelete; nil approves every request
	Confirm ConfirmFunc

	// SendTimeout bounds a single send; zero leaves it to the service
	SendTimeout time.Duration

	// OnError receives every reported failure, e.g. for a status line
	OnError func(op string, err error)

	// Now stamps optimistic and synthetic messages
	Now func() time.Time
}

// Controller is the conversation session state machine
type Controller struct {
	client      history.Client
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *instruments
	confirm     ConfirmFunc
	sendTimeout time.Duration
	onError     func(op string, err error)
	now         func() time.Time

	mu          sync.Mutex
	state       State
	viewSeq     uint64 // writes to Messages / CurrentSessionID
	loadSeq     uint64 // newest issued LoadSession
	loadingID   string // target of the newest in-flight LoadSession
	historySeq  uint64 // refreshes issued and deletes applied, in order
	listSeq     uint64 // newest issued RefreshSessions
	listing     int    // refreshes in flight
	deleted     []tombstone
	initialized bool

	subs subscribers
}

// tombstone remembers a delete so that lists fetched before it cannot
// bring the session back
type tombstone struct {
	seq       uint64
	sessionID string
}

// New creates a Controller driving client
func New(client history.Client, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		client:      client,
		logger:      opts.Logger,
		tracer:      opts.Telemetry.Tracer,
		confirm:     opts.Confirm,
		sendTimeout: opts.SendTimeout,
		onError:     opts.OnError,
		now:         opts.Now,
		state: State{
			Messages: []session.Message{},
			Sessions: []session.Summary{},
		},
	}
	c.metrics = newInstruments(opts.Telemetry.Meter, opts.Logger)
	c.subs.init()
	return c
}

// State returns a snapshot of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Initialize loads the session list on first activation; later calls are no-ops
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.mu.Unlock()

	return c.RefreshSessions(ctx)
}

// RefreshSessions replaces the cached session list with the service's
func (c *Controller) RefreshSessions(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "controller.refresh_sessions")
	defer span.End()

	c.mu.Lock()
	c.historySeq++
	issued := c.historySeq
	c.listSeq++
	seq := c.listSeq
	c.listing++
	c.mu.Unlock()

	list, err := c.client.ListSessions(ctx)

	c.mu.Lock()
	deleted := c.deletedSince(issued)
	c.listing--
	if c.listing == 0 {
		c.deleted = nil
	}
	if err != nil {
		c.mu.Unlock()
		c.report(ctx, span, "list_sessions", err)
		return fmt.Errorf("list sessions: %w", err)
	}
	if seq != c.listSeq {
		c.mu.Unlock()
		c.discard(ctx, "list_sessions")
		return nil
	}
	list = session.Unique(list)
	for _, id := range deleted {
		list = session.Without(list, id)
	}
	c.state.Sessions = list
	snap := c.commit()
	c.mu.Unlock()

	c.subs.publish(snap)
	c.logger.Debug("session list refreshed", "count", len(snap.Sessions))
	return nil
}

// deletedSince lists the sessions deleted after history event seq; c.mu must be held
func (c *Controller) deletedSince(seq uint64) []string {
	var ids []string
	for _, t := range c.deleted {
		if t.seq > seq {
			ids = append(ids, t.sessionID)
		}
	}
	return ids
}

// LoadSession replaces the transcript with the stored one for sessionID and
// makes it the active session
func (c *Controller) LoadSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	ctx, span := c.tracer.Start(ctx, "controller.load_session",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	c.mu.Lock()
	if !session.Contains(c.state.Sessions, sessionID) {
		c.mu.Unlock()
		return fmt.Errorf("load %s: %w", sessionID, ErrUnknownSession)
	}
	c.loadSeq++
	seq := c.loadSeq
	view := c.viewSeq
	c.loadingID = sessionID
	c.mu.Unlock()

	msgs, err := c.client.GetSession(ctx, sessionID)

	c.mu.Lock()
	latest := seq == c.loadSeq
	if latest {
		c.loadingID = ""
	}
	if err != nil {
		// a failed load leaves the view, and any send in flight, alone
		c.mu.Unlock()
		c.report(ctx, span, "load_session", err)
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if !latest || view != c.viewSeq {
		c.mu.Unlock()
		c.discard(ctx, "load_session")
		return nil
	}
	c.viewSeq++
	c.state.Messages = validMessages(msgs)
	c.state.CurrentSessionID = sessionID
	snap := c.commit()
	c.mu.Unlock()

	c.subs.publish(snap)
	c.logger.Info("loaded session", "session_id", sessionID, "message_count", len(snap.Messages))
	return nil
}

// NewChat clears the transcript and forgets the active session
func (c *Controller) NewChat() {
	c.mu.Lock()
	c.resetView()
	snap := c.commit()
	c.mu.Unlock()

	c.subs.publish(snap)
}

// resetView performs the new-chat transition; c.mu must be held
func (c *Controller) resetView() {
	c.viewSeq++
	c.loadingID = ""
	c.state.Messages = []session.Message{}
	c.state.CurrentSessionID = ""
}

// SendMessage appends the user's message immediately, then the service's
// reply (or ApologyMessage on failure). The transcript always grows by one
// user and one assistant message per accepted call.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	ctx, span := c.tracer.Start(ctx, "controller.send_message")
	defer span.End()

	c.mu.Lock()
	if c.state.Pending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.state.Messages = append(c.state.Messages, session.NewUserMessage(text, c.now()))
	c.state.Pending = true
	c.viewSeq++
	seq := c.viewSeq
	sessionID := c.state.CurrentSessionID
	snap := c.commit()
	c.mu.Unlock()

	c.subs.publish(snap)
	span.SetAttributes(attribute.String("session.id", sessionID))

	start := time.Now()
	result, err := c.callSend(ctx, text, sessionID)
	c.metrics.sendDuration(ctx, time.Since(start))

	c.mu.Lock()
	stale := seq != c.viewSeq
	if err == nil {
		if !stale {
			c.state.Messages = append(c.state.Messages, result.Message)
			if c.state.CurrentSessionID == "" {
				c.state.CurrentSessionID = result.SessionID
			}
		}
	} else if !stale {
		c.state.Messages = append(c.state.Messages, session.NewAssistantMessage(ApologyMessage, c.now()))
	}
	if err != nil {
		// nothing else to wait for
		c.state.Pending = false
	}
	snap = c.commit()
	c.mu.Unlock()

	c.subs.publish(snap)
	if stale {
		c.discard(ctx, "send_message")
	}

	if err != nil {
		c.metrics.failed(ctx)
		c.report(ctx, span, "send_message", err)
		return fmt.Errorf("send message: %w", err)
	}

	c.metrics.sent(ctx)
	c.logger.Info("message sent", "session_id", result.SessionID, "stale", stale)

	// keep the sidebar in step with the created or updated conversation;
	// a failed refresh is already reported and does not fail the send
	_ = c.RefreshSessions(ctx)

	c.mu.Lock()
	c.state.Pending = false
	snap = c.commit()
	c.mu.Unlock()
	c.subs.publish(snap)
	return nil
}

// callSend invokes the service and validates its reply
func (c *Controller) callSend(ctx context.Context, text, sessionID string) (history.SendResult, error) {
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}

	result, err := c.client.SendMessage(ctx, text, sessionID)
	if err != nil {
		return history.SendResult{}, err
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return history.SendResult{}, ErrEmptyReply
	}
	if result.SessionID == "" && sessionID == "" {
		return history.SendResult{}, errors.New("service did not assign a session id")
	}

	result.Message.Role = session.RoleAssistant
	if result.Message.Timestamp.IsZero() {
		result.Message.Timestamp = c.now()
	}
	return result, nil
}

// DeleteSession deletes sessionID at the service and drops it from the list.
// Deleting the active session also performs the new-chat transition.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	ctx, span := c.tracer.Start(ctx, "controller.delete_session",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := c.client.DeleteSession(ctx, sessionID); err != nil {
		c.report(ctx, span, "delete_session", err)
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	c.state.Sessions = session.Without(c.state.Sessions, sessionID)
	if c.listing > 0 {
		c.historySeq++
		c.deleted = append(c.deleted, tombstone{seq: c.historySeq, sessionID: sessionID})
	}
	wasActive := c.state.CurrentSessionID == sessionID
	if wasActive || c.loadingID == sessionID {
		c.resetView()
	}
	snap := c.commit()
	c.mu.Unlock()

	c.subs.publish(snap)
	c.logger.Info("deleted session", "session_id", sessionID, "was_active", wasActive)
	return nil
}

// RequestDelete asks the confirm policy before deleting; it reports whether
// the delete went ahead
func (c *Controller) RequestDelete(ctx context.Context, sessionID string) (bool, error) {
	if c.confirm != nil && !c.confirm(sessionID) {
		c.logger.Debug("delete declined", "session_id", sessionID)
		return false, nil
	}
	if err := c.DeleteSession(ctx, sessionID); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe returns a channel that always holds the newest snapshot not yet
// received, starting with the current one. Call cancel to stop delivery.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	snap := c.state.clone()
	c.mu.Unlock()
	return c.subs.add(snap)
}

// commit bumps the version and returns a snapshot; c.mu must be held
func (c *Controller) commit() State {
	c.state.Version++
	return c.state.clone()
}

func (c *Controller) report(ctx context.Context, span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.metrics.errored(ctx, op)
	c.logger.Error("operation failed", "op", op, "error", err)
	if c.onError != nil {
		c.onError(op, err)
	}
}

func (c *Controller) discard(ctx context.Context, op string) {
	c.metrics.stale(ctx, op)
	c.logger.Debug("discarded superseded result", "op", op)
}

// validMessages keeps messages that satisfy the transcript invariants
func validMessages(msgs []session.Message) []session.Message {
	out := make([]session.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role.Valid() && m.Content != "" {
			out = append(out, m)
		}
	}
	return out
}

type instruments struct {
	sentCounter   metric.Int64Counter
	failedCounter metric.Int64Counter
	errorCounter  metric.Int64Counter
	staleCounter  metric.Int64Counter
	sendHistogram metric.Float64Histogram
}

func newInstruments(meter metric.Meter, logger *slog.Logger) *instruments {
	ins := &instruments{}
	var err error
	if ins.sentCounter, err = meter.Int64Counter("chat.messages.sent",
		metric.WithDescription("Messages answered by the service")); err != nil {
		logger.Warn("failed to create counter", "name", "chat.messages.sent", "error", err)
	}
	if ins.failedCounter, err = meter.Int64Counter("chat.messages.failed",
		metric.WithDescription("Messages answered with the apology")); err != nil {
		logger.Warn("failed to create counter", "name", "chat.messages.failed", "error", err)
	}
	if ins.errorCounter, err = meter.Int64Counter("chat.operations.failed",
		metric.WithDescription("Failed controller operations by kind")); err != nil {
		logger.Warn("failed to create counter", "name", "chat.operations.failed", "error", err)
	}
	if ins.staleCounter, err = meter.Int64Counter("chat.results.stale",
		metric.WithDescription("Service results discarded because a newer request superseded them")); err != nil {
		logger.Warn("failed to create counter", "name", "chat.results.stale", "error", err)
	}
	if ins.sendHistogram, err = meter.Float64Histogram("chat.send.duration",
		metric.WithDescription("Send round trip in milliseconds")); err != nil {
		logger.Warn("failed to create histogram", "name", "chat.send.duration", "error", err)
	}
	return ins
}

func (i *instruments) sent(ctx context.Context) {
	if i.sentCounter != nil {
		i.sentCounter.Add(ctx, 1)
	}
}

func (i *instruments) failed(ctx context.Context) {
	if i.failedCounter != nil {
		i.failedCounter.Add(ctx, 1)
	}
}

func (i *instruments) errored(ctx context.Context, op string) {
	if i.errorCounter != nil {
		i.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (i *instruments) stale(ctx context.Context, op string) {
	if i.staleCounter != nil {
		i.staleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (i *instruments) sendDuration(ctx context.Context, d time.Duration) {
	if i.sendHistogram != nil {
		i.sendHistogram.Record(ctx, float64(d.Milliseconds()))
	}
}
