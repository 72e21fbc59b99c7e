package transport

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/electromart/chatlink/chat"
)

const (
	// DefaultPingInterval is how often keep-alive pings go out.
	DefaultPingInterval = 25 * time.Second

	// DefaultPongWait is how long a silent connection is tolerated
	// before it is declared dead.
	DefaultPongWait = 60 * time.Second

	writeWait      = 10 * time.Second
	outboundBuffer = 32
	eventBuffer    = 64
)

// Config configures a websocket transport session.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the backend.
	URL string

	// SessionID, when set, is presented on the first dial so the backend
	// resumes a conversation from a previous process.
	SessionID string

	// BaseDelay and MaxDelay bound the reconnect backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxAttempts caps reconnect attempts per outage; 0 means retry
	// forever.
	MaxAttempts int

	// PingInterval and PongWait tune the keep-alive loop.
	PingInterval time.Duration
	PongWait     time.Duration

	// Dialer overrides the default websocket dialer (tests).
	Dialer *websocket.Dialer
}

// Socket is the websocket implementation of Transport.
type Socket struct {
	cfg Config

	events chan Event
	out    chan []byte
	done   chan struct{}

	state   atomic.Int32
	attempt atomic.Int32

	mu        sync.Mutex
	sessionID string
	started   bool
	closed    bool
	cancel    context.CancelFunc
}

var _ Transport = (*Socket)(nil)

// NewSocket creates a websocket transport. Connect must be called
// before any outbound operation.
func NewSocket(cfg Config) *Socket {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	return &Socket{
		cfg:       cfg,
		sessionID: cfg.SessionID,
		events:    make(chan Event, eventBuffer),
		out:       make(chan []byte, outboundBuffer),
		done:      make(chan struct{}),
	}
}

// Connect starts the connection manager. Calling Connect on a transport
// that is already running is a no-op.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.manage(ctx)
	return nil
}

// Disconnect tears the session down and clears the retained session ID.
// The transport cannot be reused afterwards; open a new Socket for a
// fresh session.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.sessionID = ""
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if !started {
		close(s.done)
		close(s.events)
		return nil
	}
	cancel()
	<-s.done
	return nil
}

// Events returns the inbound event stream.
func (s *Socket) Events() <-chan Event { return s.events }

// State returns the current connection state.
func (s *Socket) State() State { return State(s.state.Load()) }

// Attempt returns the in-progress reconnect attempt count.
func (s *Socket) Attempt() int { return int(s.attempt.Load()) }

// SessionID returns the retained session identifier.
func (s *Socket) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Submit sends a user message.
func (s *Socket) Submit(messageID, content, msgType string) error {
	if msgType == "" {
		msgType = "text"
	}
	return s.send(chat.EventMessage, chat.Submit{
		Message:   content,
		Type:      msgType,
		MessageID: messageID,
	})
}

// Cancel requests cancellation of one in-flight message.
func (s *Socket) Cancel(messageID string) error {
	return s.send(chat.EventCancelMessage, chat.CancelRequest{MessageID: messageID})
}

// CancelAll requests cancellation of every in-flight message.
func (s *Socket) CancelAll() error {
	return s.send(chat.EventCancelAll, nil)
}

// Typing reports the user's typing state.
func (s *Socket) Typing(isTyping bool) error {
	return s.send(chat.EventTyping, chat.TypingSignal{IsTyping: isTyping})
}

func (s *Socket) send(event string, data any) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	b, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	select {
	case s.out <- b:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// manage runs the connect/reconnect loop until the context is canceled.
func (s *Socket) manage(ctx context.Context) {
	defer func() {
		s.state.Store(int32(StateDisconnected))
		s.attempt.Store(0)
		close(s.events)
		close(s.done)
	}()

	attempt := 0 // 0 means initial connect: no backoff, no attempt event
	for {
		if attempt > 0 {
			if s.cfg.MaxAttempts > 0 && attempt > s.cfg.MaxAttempts {
				s.attempt.Store(0)
				s.state.Store(int32(StateDisconnected))
				s.emit(ctx, Exhausted{Attempts: attempt - 1})
				return
			}
			s.state.Store(int32(StateReconnecting))
			s.attempt.Store(int32(attempt))
			s.emit(ctx, Reconnecting{Attempt: attempt})

			select {
			case <-time.After(backoffDelay(s.cfg.BaseDelay, s.cfg.MaxDelay, attempt)):
			case <-ctx.Done():
				return
			}
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("transport: dial %s failed: %v", s.cfg.URL, err)
			attempt++
			continue
		}

		reason := s.run(ctx, conn, attempt)
		if ctx.Err() != nil {
			s.tryEmit(Disconnected{Reason: "client disconnected", Retrying: false})
			return
		}

		s.state.Store(int32(StateReconnecting))
		s.emit(ctx, Disconnected{Reason: reason, Retrying: true})
		attempt = 1
	}
}

// dial opens the websocket, presenting the retained session ID so the
// backend resumes the prior conversation.
func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID != "" {
		q := u.Query()
		q.Set("session_id", sessionID)
		u.RawQuery = q.Encode()
	}

	dialer := s.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// run pumps one live connection until it drops. attempts is the
// reconnect attempt count that produced this connection.
func (s *Socket) run(ctx context.Context, conn *websocket.Conn, attempts int) string {
	g, gctx := errgroup.WithContext(ctx)

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

	g.Go(func() error { return s.readPump(gctx, conn, attempts) })
	g.Go(func() error { return s.writePump(gctx, conn) })
	g.Go(func() error {
		// Unblock the read pump when either pump fails or the context
		// is canceled.
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})

	err := g.Wait()

	if err != nil {
		return err.Error()
	}
	return "connection closed"
}

func (s *Socket) readPump(ctx context.Context, conn *websocket.Conn, attempts int) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		// Any traffic proves the backend alive, pong frames included.
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		ev, err := decodeFrame(data)
		if err != nil {
			log.Printf("transport: dropping malformed frame: %v", err)
			continue
		}
		if ev == nil {
			continue
		}

		if payload, ok := ev.(chat.ConnectedPayload); ok {
			s.mu.Lock()
			s.sessionID = payload.SessionID
			s.mu.Unlock()
			s.state.Store(int32(StateConnected))
			s.attempt.Store(0)
			s.emit(ctx, Connected{
				SessionID: payload.SessionID,
				Restored:  payload.Restored,
				Attempts:  attempts,
			})
			continue
		}

		s.emit(ctx, ev)
	}
}

func (s *Socket) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	// The keep-alive is an application-level ping event; the backend
	// answers with a pong frame on the same channel as everything else.
	ping, err := encodeFrame(chat.EventPing, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return fmt.Errorf("ping: %w", err)
			}

		case msg := <-s.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// emit delivers an event unless shutdown is in progress.
func (s *Socket) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// tryEmit delivers an event if there is room, used on the shutdown path
// where blocking is not an option.
func (s *Socket) tryEmit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}
