// Package history persists the conversation log under its session ID so
// a restarted client can restore the transcript the backend resumes.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/electromart/chatlink/chat"
)

// Common errors for storage operations.
var (
	// ErrNotFound is returned when no conversation exists for a session.
	ErrNotFound = errors.New("conversation not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("history store is closed")
)

// Conversation is the persisted snapshot of one session.
type Conversation struct {
	SessionID    string         `json:"session_id"`
	Messages     []chat.Message `json:"messages"`
	CurrentAgent string         `json:"current_agent,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Store abstracts conversation persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or replaces the conversation for its session ID.
	Save(ctx context.Context, conv *Conversation) error

	// Load retrieves the conversation for a session.
	// Returns ErrNotFound if nothing was stored.
	Load(ctx context.Context, sessionID string) (*Conversation, error)

	// Delete removes the stored conversation.
	Delete(ctx context.Context, sessionID string) error

	// SetLastSession records the most recently connected session ID so
	// a restarted process can present it on its first dial.
	SetLastSession(ctx context.Context, sessionID string) error

	// LastSession returns the recorded session ID, or "" when none is.
	LastSession(ctx context.Context) (string, error)

	// Close releases any resources held by the store.
	Close() error
}
