// Package transport maintains one logical connection to the support
// backend regardless of underlying reconnect churn. It dials a
// websocket, decodes inbound frames into typed events, reconnects with
// jittered exponential backoff, and presents the retained session ID on
// every reconnect attempt so the backend can resume prior context.
package transport

import (
	"context"
	"errors"
)

// State is the observable connection state.
type State int32

const (
	// StateDisconnected means no connection and no retry in progress
	// (initial load or explicit disconnect).
	StateDisconnected State = iota
	// StateConnected means the session is live.
	StateConnected
	// StateReconnecting means a reconnect attempt is in progress.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned for outbound operations while the
	// session is down.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("transport closed")
)

// Event is a value delivered on the Events channel. Connection
// lifecycle events are the types declared below; decoded server frames
// are delivered as chat.ConnectedPayload, chat.QueuedAck, chat.Reply,
// chat.TypingSignal, chat.AgentSwitch, chat.HumanHandoff,
// chat.ServerError, chat.Cancelled, chat.AllCancelled, chat.Duplicate
// and chat.Pong. Events are emitted sequentially; no two are in flight
// at once.
type Event any

// Connected reports a live session. Attempts is the number of reconnect
// attempts it took (zero on first connect).
type Connected struct {
	SessionID string
	Restored  bool
	Attempts  int
}

// Disconnected reports connection loss. Retrying tells whether the
// transport will attempt to reconnect.
type Disconnected struct {
	Reason   string
	Retrying bool
}

// Reconnecting reports that attempt N is in progress.
type Reconnecting struct {
	Attempt int
}

// Exhausted reports that the retry budget is spent; the session is
// permanently down until a fresh Connect.
type Exhausted struct {
	Attempts int
}

// Transport is the connection abstraction the engine drives. A fake
// implementation backs the engine tests.
type Transport interface {
	// Connect establishes the session. Idempotent: connecting an
	// already-connected transport is a no-op.
	Connect(ctx context.Context) error

	// Disconnect tears down the connection and clears the retained
	// session ID, so the next Connect starts a fresh session.
	Disconnect() error

	// Submit sends a user message. The message ID is generated by the
	// caller and echoed back in acks and replies.
	Submit(messageID, content, msgType string) error

	// Cancel requests cancellation of one in-flight message.
	Cancel(messageID string) error

	// CancelAll requests cancellation of every in-flight message.
	CancelAll() error

	// Typing reports the user's typing state to the backend.
	Typing(isTyping bool) error

	// Events returns the inbound event stream. The channel is closed
	// after Disconnect.
	Events() <-chan Event

	// State returns the current connection state.
	State() State

	// Attempt returns the current reconnect attempt count; zero while
	// connected.
	Attempt() int

	// SessionID returns the retained session identifier, empty before
	// the first successful connect.
	SessionID() string
}
