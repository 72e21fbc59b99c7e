// Package chat defines the core conversation data model shared by the
// chatlink engine: messages, pending entries, offline queue entries, and
// the wire events exchanged with the support backend.
package chat

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser marks a message typed by the customer.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the backend, including
	// system notices emitted by the engine itself.
	RoleAssistant Role = "assistant"
)

// SystemAgent is the agent tag used for engine-generated notices
// (reconnection banners, cancellation summaries). Notices carrying this
// tag never participate in reply matching.
const SystemAgent = "system"

// Message is one entry in the conversation log. Messages are immutable
// once appended; the only permitted log mutation is removal of a user
// message after the backend confirms its cancellation.
type Message struct {
	// ID is the correlation identifier assigned at submission time.
	// Empty for legacy/system entries, in which case the position in the
	// log at append time stands in as the key.
	ID string `json:"message_id,omitempty"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Agent names the specialized responder that produced an assistant
	// message (e.g. "logistics", "sales"). Empty on user messages.
	Agent string `json:"agent,omitempty"`

	// InReplyTo holds the correlation identifier the backend attached to
	// an assistant reply. It resolves the matching pending entry; the
	// rendered reply-to link comes from the correlation engine's FIFO
	// matching, not from this field.
	InReplyTo string `json:"in_reply_to,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Metadata carries free-form annotations from the backend
	// (intent, sentiment, hand-off details, ...).
	Metadata map[string]any `json:"metadata,omitempty"`

	// pos is the log position at append time, used as the fallback key
	// for messages without an ID.
	pos int
}

// Key returns the stable identity of the message: its ID when present,
// otherwise its position at append time. Positional keys are only stable
// while the log is never truncated, which the engine guarantees.
func (m Message) Key() MessageKey {
	if m.ID != "" {
		return MessageKey{ID: m.ID}
	}
	return MessageKey{Pos: m.pos}
}

// WithPos returns a copy of the message with its positional fallback key
// set. The engine calls this once, at append time.
func (m Message) WithPos(pos int) Message {
	m.pos = pos
	return m
}

// MessageKey is the variant key type for log entries: a stable message ID
// when one exists, or the position at append time for legacy/system
// entries.
type MessageKey struct {
	ID  string
	Pos int
}

// KeyForID builds a MessageKey from a message ID.
func KeyForID(id string) MessageKey { return MessageKey{ID: id} }

// PendingStatus describes where an in-flight message currently is.
type PendingStatus string

const (
	// StatusSending means the message was handed to the transport and no
	// acknowledgment has arrived yet.
	StatusSending PendingStatus = "sending"
	// StatusQueued means the backend acknowledged the message and queued
	// it for processing, or the message sits in the local offline queue.
	StatusQueued PendingStatus = "queued"
)

// PendingEntry tracks one user message awaiting resolution. At most one
// entry exists per message ID.
type PendingEntry struct {
	MessageID     string        `json:"message_id"`
	Content       string        `json:"content"`
	Status        PendingStatus `json:"status"`
	SentAt        time.Time     `json:"sent_at"`
	IsTyping      bool          `json:"is_typing"`
	QueuePosition int           `json:"queue_position,omitempty"`
}

// OfflineEntry is a user message authored while disconnected, buffered
// for replay on reconnect.
type OfflineEntry struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	QueuedAt  time.Time `json:"queued_at"`
}
