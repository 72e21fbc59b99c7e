package chatlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/electromart/chatlink/chat"
	iobs "github.com/electromart/chatlink/internal/observability"
	"github.com/electromart/chatlink/pkg/correlate"
	"github.com/electromart/chatlink/pkg/guard"
	"github.com/electromart/chatlink/pkg/history"
	"github.com/electromart/chatlink/pkg/observability"
	"github.com/electromart/chatlink/pkg/transport"
)

var (
	// ErrClientClosed is returned for operations on a closed client.
	ErrClientClosed = errors.New("client is closed")

	// ErrEmptyMessage is returned when a submitted message is blank.
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrNotPending is returned when cancelling a message that is not
	// awaiting a reply.
	ErrNotPending = errors.New("message is not pending")
)

// Client is the conversation engine: it owns the append-only message
// log, the pending-message tracker, and the offline queue, and reacts
// to transport events. All state mutation happens either in the event
// loop goroutine or under the client mutex, so observers always see a
// consistent snapshot.
type Client struct {
	tr     transport.Transport
	guard  *guard.Guard
	store  history.Store
	saver  *history.Autosaver
	health *observability.HealthChecker

	corrOpts correlate.Options

	mu        sync.Mutex
	log       []chat.Message
	nextPos   int
	pending   map[string]chat.PendingEntry
	offline   []chat.OfflineEntry
	state     transport.State
	attempt   int
	sessionID string
	agent     string
	lastErr   string
	typing    bool
	closed    bool

	spans map[string]*iobs.Span

	// Correlation memo, invalidated whenever log or pending change.
	version uint64
	memoVer uint64
	memo    correlate.Map

	loopDone chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithGuard replaces the default duplicate/throttle guard.
func WithGuard(g *guard.Guard) Option {
	return func(c *Client) { c.guard = g }
}

// WithCorrelation tunes the correlation projection.
func WithCorrelation(opts correlate.Options) Option {
	return func(c *Client) { c.corrOpts = opts }
}

// WithHistory enables conversation persistence. The client saves on the
// autosave schedule and on Close; ClearHistory deletes the stored
// conversation. The store is closed when the client closes.
func WithHistory(store history.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithHealth attaches a health checker updated on connection changes.
func WithHealth(hc *observability.HealthChecker) Option {
	return func(c *Client) { c.health = hc }
}

// NewClient wraps a transport in the conversation engine and starts the
// event loop. The caller must Close the client to release it.
func NewClient(tr transport.Transport, opts ...Option) *Client {
	c := &Client{
		tr:       tr,
		guard:    guard.New(0, 0),
		pending:  make(map[string]chat.PendingEntry),
		spans:    make(map[string]*iobs.Span),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.loop()
	return c
}

// Connect establishes the session. Idempotent while the transport is
// running.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()
	return c.tr.Connect(ctx)
}

// StartAutosave begins periodic persistence on the given interval.
// A no-op without a history store.
func (c *Client) StartAutosave(interval time.Duration) error {
	if c.store == nil {
		return nil
	}
	saver, err := history.NewAutosaver(interval, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.SaveHistory(ctx)
	})
	if err != nil {
		return err
	}
	c.saver = saver
	saver.Start()
	return nil
}

// Close saves the conversation, tears down the transport, and waits for
// the event loop to drain. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.saver != nil {
		c.saver.Stop()
	}
	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = c.SaveHistory(ctx)
		cancel()
	}

	err := c.tr.Disconnect()
	<-c.loopDone

	if c.store != nil {
		_ = c.store.Close()
	}
	return err
}

// Submit sends a user message, or queues it when disconnected. The
// returned ID identifies the message in the log and the pending set.
// Guard rejections leave log, queue, and tracker untouched.
func (c *Client) Submit(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClientClosed
	}

	if err := c.guard.Check(content); err != nil {
		c.lastErr = err.Error()
		c.mu.Unlock()
		if errors.Is(err, guard.ErrDuplicate) {
			observability.RecordSend("rejected_duplicate")
		} else {
			observability.RecordSend("rejected_throttled")
		}
		return "", err
	}

	id := uuid.NewString()
	now := time.Now()
	c.appendLocked(chat.Message{
		ID:        id,
		Role:      chat.RoleUser,
		Content:   content,
		Timestamp: now,
	})
	_, span := iobs.StartSpan(context.Background(), "message.roundtrip",
		map[string]any{"message_id": id})
	c.spans[id] = span

	if c.state != transport.StateConnected {
		c.enqueueOfflineLocked(id, content, now)
		c.publishLocked()
		c.mu.Unlock()
		observability.RecordSend("queued_offline")
		return id, nil
	}

	c.pending[id] = chat.PendingEntry{
		MessageID: id,
		Content:   content,
		Status:    chat.StatusSending,
		SentAt:    now,
	}
	c.version++
	c.publishLocked()
	c.mu.Unlock()

	if err := c.tr.Submit(id, content, "text"); err != nil {
		// Lost the connection between the state check and the send;
		// fall back to the offline queue.
		c.mu.Lock()
		delete(c.pending, id)
		c.enqueueOfflineLocked(id, content, now)
		c.publishLocked()
		c.mu.Unlock()
		observability.RecordSend("queued_offline")
		return id, nil
	}

	observability.RecordSend("sent")
	return id, nil
}

// CancelOne asks the backend to cancel an in-flight message. The
// pending entry and its log bubble are removed only when the backend
// confirms.
func (c *Client) CancelOne(messageID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != transport.StateConnected {
		c.lastErr = transport.ErrNotConnected.Error()
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	if _, ok := c.pending[messageID]; !ok {
		c.mu.Unlock()
		return ErrNotPending
	}
	c.mu.Unlock()

	return c.tr.Cancel(messageID)
}

// CancelAll asks the backend to cancel every in-flight message. The
// pending set is cleared when the bulk confirmation arrives.
func (c *Client) CancelAll() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != transport.StateConnected {
		c.lastErr = transport.ErrNotConnected.Error()
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	c.mu.Unlock()

	return c.tr.CancelAll()
}

// SetUserTyping echoes the user's typing state to the backend. Silently
// ignored while disconnected.
func (c *Client) SetUserTyping(isTyping bool) error {
	c.mu.Lock()
	connected := !c.closed && c.state == transport.StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.tr.Typing(isTyping)
}

// ClearHistory wipes the log, pending set, and offline queue, and
// deletes any stored conversation.
func (c *Client) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.log = nil
	c.nextPos = 0
	c.pending = make(map[string]chat.PendingEntry)
	c.offline = nil
	c.typing = false
	c.lastErr = ""
	c.endSpansLocked()
	c.version++
	sessionID := c.sessionID
	c.publishLocked()
	c.mu.Unlock()

	if c.store != nil && sessionID != "" {
		if err := c.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete stored conversation: %w", err)
		}
	}
	return nil
}

// ClearError resets the last transient error.
func (c *Client) ClearError() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
}

// SaveHistory persists the current conversation snapshot. A no-op
// without a store or before the first connect.
func (c *Client) SaveHistory(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return nil
	}
	conv := &history.Conversation{
		SessionID:    c.sessionID,
		Messages:     append([]chat.Message(nil), c.log...),
		CurrentAgent: c.agent,
		UpdatedAt:    time.Now(),
	}
	c.mu.Unlock()

	return c.store.Save(ctx, conv)
}

// GuardStats returns the duplicate/throttle counters.
func (c *Client) GuardStats() guard.Stats {
	return c.guard.Stats()
}

// Snapshot is a consistent view of the observable engine state.
type Snapshot struct {
	State            transport.State
	ReconnectAttempt int
	SessionID        string
	Messages         []chat.Message
	Pending          []chat.PendingEntry
	OfflineQueueLen  int
	LastError        string
	AnyoneTyping     bool
	CurrentAgent     string
}

// Snapshot returns a copy of the observable state. The pending slice is
// ordered by submission time.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:            c.state,
		ReconnectAttempt: c.attempt,
		SessionID:        c.sessionID,
		Messages:         append([]chat.Message(nil), c.log...),
		Pending:          c.pendingSortedLocked(),
		OfflineQueueLen:  len(c.offline),
		LastError:        c.lastErr,
		CurrentAgent:     c.agent,
	}
	snap.AnyoneTyping = c.typing || len(c.pending) > 0
	return snap
}

// Correlation returns the correlation map for the current log and
// pending set. Memoized until either input changes.
func (c *Client) Correlation() correlate.Map {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memo != nil && c.memoVer == c.version {
		return c.memo
	}
	c.memo = correlate.Compute(c.log, c.pendingSortedLocked(), c.corrOpts)
	c.memoVer = c.version
	return c.memo
}

func (c *Client) pendingSortedLocked() []chat.PendingEntry {
	out := make([]chat.PendingEntry, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	// Stable order for observers and the correlation pending pass.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.SentAt.Before(b.SentAt) || (a.SentAt.Equal(b.SentAt) && a.MessageID < b.MessageID) {
				break
			}
			out[j-1], out[j] = b, a
		}
	}
	return out
}

// loop consumes transport events sequentially until the event channel
// closes on Disconnect. No two inbound events are processed
// concurrently.
func (c *Client) loop() {
	defer close(c.loopDone)
	for ev := range c.tr.Events() {
		c.handle(ev)
	}
}

func (c *Client) handle(ev transport.Event) {
	switch e := ev.(type) {
	case transport.Connected:
		c.onConnected(e)
	case transport.Disconnected:
		c.onDisconnected(e)
	case transport.Reconnecting:
		c.onReconnecting(e)
	case transport.Exhausted:
		c.onExhausted(e)
	case chat.ConnectedPayload:
		// Fakes deliver the raw frame; the websocket transport translates
		// it into transport.Connected itself.
		c.onConnected(transport.Connected{SessionID: e.SessionID, Restored: e.Restored})
	case chat.QueuedAck:
		c.onQueuedAck(e)
	case chat.TypingSignal:
		c.onTyping(e)
	case chat.Reply:
		c.onReply(e)
	case chat.AgentSwitch:
		c.onAgentSwitch(e)
	case chat.HumanHandoff:
		c.onHumanHandoff(e)
	case chat.ServerError:
		c.onServerError(e)
	case chat.Cancelled:
		c.onCancelled(e)
	case chat.AllCancelled:
		c.onAllCancelled(e)
	case chat.Duplicate:
		c.onDuplicate(e)
	case chat.Pong:
		// Keep-alive; the transport already reset its read deadline.
	}
}

func (c *Client) onConnected(e transport.Connected) {
	c.mu.Lock()
	c.state = transport.StateConnected
	c.attempt = 0
	c.sessionID = e.SessionID
	restore := e.Restored && c.store != nil && len(c.log) == 0
	c.mu.Unlock()

	// Restore before appending any notices: the transcript must lead the
	// log, and restoration only runs into an empty one.
	if restore {
		c.restoreConversation(e.SessionID)
	}
	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.store.SetLastSession(ctx, e.SessionID)
		cancel()
	}

	c.mu.Lock()
	if e.Attempts > 0 {
		c.appendLocked(systemNotice(fmt.Sprintf(
			"Reconnected after %d attempt(s).", e.Attempts)))
		observability.RecordReconnect()
	}

	flush := c.offline
	c.offline = nil
	if len(flush) > 0 {
		c.appendLocked(systemNotice(fmt.Sprintf(
			"Sending %d queued message(s)...", len(flush))))
		for _, entry := range flush {
			if p, ok := c.pending[entry.MessageID]; ok {
				p.Status = chat.StatusSending
				p.SentAt = time.Now()
				c.pending[entry.MessageID] = p
			}
		}
		c.version++
	}
	c.publishLocked()
	c.mu.Unlock()

	for _, entry := range flush {
		if err := c.tr.Submit(entry.MessageID, entry.Content, entry.Type); err != nil {
			// The connection dropped mid-flush; the backend never saw the
			// rest, so queue them again for the next reconnect.
			c.mu.Lock()
			c.enqueueOfflineLocked(entry.MessageID, entry.Content, entry.QueuedAt)
			c.publishLocked()
			c.mu.Unlock()
		}
	}
}

func (c *Client) restoreConversation(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := c.store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			c.mu.Lock()
			c.lastErr = fmt.Sprintf("restore conversation: %v", err)
			c.mu.Unlock()
		}
		return
	}

	c.mu.Lock()
	// Give up if messages arrived while the load was in flight.
	if len(c.log) == 0 {
		for _, m := range conv.Messages {
			c.appendLocked(m)
		}
		if conv.CurrentAgent != "" {
			c.agent = conv.CurrentAgent
		}
	}
	c.mu.Unlock()
}

func (c *Client) onDisconnected(e transport.Disconnected) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Retrying {
		c.state = transport.StateReconnecting
		c.appendLocked(systemNotice("Connection lost. Reconnecting..."))
	} else {
		c.state = transport.StateDisconnected
		c.appendLocked(systemNotice("Disconnected."))
	}
	c.publishLocked()
}

func (c *Client) onReconnecting(e transport.Reconnecting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = transport.StateReconnecting
	c.attempt = e.Attempt
	observability.RecordReconnectAttempt()
	c.publishLocked()
}

func (c *Client) onExhausted(e transport.Exhausted) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = transport.StateDisconnected
	c.attempt = 0
	c.appendLocked(systemNotice(fmt.Sprintf(
		"Unable to reconnect after %d attempts. Please restart the client.", e.Attempts)))
	c.publishLocked()
}

func (c *Client) onQueuedAck(e chat.QueuedAck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[e.MessageID]
	if !ok {
		// Already resolved or cancelled.
		return
	}
	p.Status = chat.StatusQueued
	p.QueuePosition = e.QueuePosition
	c.pending[e.MessageID] = p
	c.version++
	c.publishLocked()
}

func (c *Client) onTyping(e chat.TypingSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.MessageID != "" {
		if p, ok := c.pending[e.MessageID]; ok {
			p.IsTyping = e.IsTyping
			c.pending[e.MessageID] = p
			c.version++
		}
	} else {
		// A global indicator is meaningless with nothing in flight; an
		// empty pending set always reads as idle.
		c.typing = e.IsTyping && len(c.pending) > 0
	}
	if e.Agent != "" && e.IsTyping {
		c.agent = e.Agent
	}
}

func (c *Client) onReply(e chat.Reply) {
	c.mu.Lock()

	var latency time.Duration
	if e.MessageID != "" {
		if p, ok := c.pending[e.MessageID]; ok {
			latency = time.Since(p.SentAt)
			delete(c.pending, e.MessageID)
			c.endSpanLocked(e.MessageID, nil)
		}
	}
	if len(c.pending) == 0 {
		c.typing = false
	}
	if e.Agent != "" && e.Agent != chat.SystemAgent {
		c.agent = e.Agent
	}

	c.appendLocked(chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleAssistant,
		Content:   e.Message,
		Agent:     e.Agent,
		InReplyTo: e.MessageID,
		Timestamp: parseTimestamp(e.Timestamp),
		Metadata:  e.Metadata,
	})
	c.publishLocked()
	c.mu.Unlock()

	observability.RecordReply(e.Agent, latency)
}

func (c *Client) onAgentSwitch(e chat.AgentSwitch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := fmt.Sprintf("Transferring you from %s to %s.", e.FromAgent, e.ToAgent)
	if e.Reason != "" {
		text = fmt.Sprintf("Transferring you from %s to %s: %s", e.FromAgent, e.ToAgent, e.Reason)
	}
	c.appendLocked(systemNotice(text))
	c.agent = e.ToAgent
	c.publishLocked()
}

func (c *Client) onHumanHandoff(e chat.HumanHandoff) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := e.Message
	if text == "" {
		text = fmt.Sprintf("Connecting you with a human agent. You are #%d in the queue.", e.QueuePosition)
		if e.EstimatedWaitTime != "" {
			text = fmt.Sprintf("%s Estimated wait: %s.", text, e.EstimatedWaitTime)
		}
	}
	c.appendLocked(systemNotice(text))
	c.agent = "human"
	c.publishLocked()
}

func (c *Client) onServerError(e chat.ServerError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = e.Message
	if e.MessageID != "" {
		if _, ok := c.pending[e.MessageID]; ok {
			delete(c.pending, e.MessageID)
			c.endSpanLocked(e.MessageID, errors.New(e.Message))
			c.version++
		}
	}
	if len(c.pending) == 0 {
		c.typing = false
	}
	c.publishLocked()
}

func (c *Client) onCancelled(e chat.Cancelled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[e.MessageID]; !ok {
		// A reply already resolved this message; cancellation lost the
		// race, so the confirmation is a no-op.
		return
	}
	delete(c.pending, e.MessageID)
	c.endSpanLocked(e.MessageID, nil)
	c.removeFromLogLocked(e.MessageID)
	if len(c.pending) == 0 {
		c.typing = false
	}
	c.version++
	c.publishLocked()
	observability.RecordCancellation("single", 1)
}

func (c *Client) onAllCancelled(e chat.AllCancelled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := e.CancelledCount
	if count == 0 {
		count = len(c.pending)
	}
	c.pending = make(map[string]chat.PendingEntry)
	c.endSpansLocked()
	c.typing = false

	text := e.Message
	if text == "" {
		text = fmt.Sprintf("Cancelled %d message(s).", count)
	}
	c.appendLocked(systemNotice(text))
	c.publishLocked()
	observability.RecordCancellation("all", count)
}

func (c *Client) onDuplicate(e chat.Duplicate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := e.Message
	if text == "" {
		text = "Duplicate message detected; the earlier one is still being processed."
	}
	c.appendLocked(systemNotice(text))
	c.guard.ClearSending()
	c.publishLocked()
}

// appendLocked assigns the positional fallback key and appends. The log
// position counter is monotonic, so keys stay stable even after a
// cancelled message is removed.
func (c *Client) appendLocked(m chat.Message) {
	c.log = append(c.log, m.WithPos(c.nextPos))
	c.nextPos++
	c.version++
}

// removeFromLogLocked drops the user message confirmed cancelled. This
// is the only log mutation besides append.
func (c *Client) removeFromLogLocked(messageID string) {
	for i, m := range c.log {
		if m.ID == messageID {
			c.log = append(c.log[:i], c.log[i+1:]...)
			return
		}
	}
}

func (c *Client) enqueueOfflineLocked(id, content string, queuedAt time.Time) {
	c.offline = append(c.offline, chat.OfflineEntry{
		MessageID: id,
		Content:   content,
		Type:      "text",
		QueuedAt:  queuedAt,
	})
	c.pending[id] = chat.PendingEntry{
		MessageID: id,
		Content:   content,
		Status:    chat.StatusQueued,
		SentAt:    queuedAt,
	}
	c.version++
}

func (c *Client) endSpanLocked(messageID string, cause error) {
	if span, ok := c.spans[messageID]; ok {
		span.SetError(cause)
		span.End()
		delete(c.spans, messageID)
	}
}

func (c *Client) endSpansLocked() {
	for id, span := range c.spans {
		span.End()
		delete(c.spans, id)
	}
}

func (c *Client) publishLocked() {
	observability.SetPendingMessages(len(c.pending))
	observability.SetOfflineQueueDepth(len(c.offline))
	if c.health != nil {
		c.health.Update(c.state.String(), c.attempt, len(c.pending), c.sessionID)
	}
}

func systemNotice(text string) chat.Message {
	return chat.Message{
		Role:      chat.RoleAssistant,
		Agent:     chat.SystemAgent,
		Content:   text,
		Timestamp: time.Now(),
	}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
