package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists conversations as JSON files under a base directory,
// one file per session. It is the zero-dependency fallback when no Redis
// is available.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".chatlink", "conversations")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(sessionID string) string {
	// Session IDs are UUIDs; filepath.Base guards against anything else.
	return filepath.Join(s.baseDir, filepath.Base(sessionID)+".json")
}

// Save writes the conversation atomically via a temp file rename.
func (s *FileStore) Save(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	tmp := s.path(conv.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	if err := os.Rename(tmp, s.path(conv.SessionID)); err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return nil
}

// Load reads the conversation for a session.
func (s *FileStore) Load(ctx context.Context, sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// Delete removes the stored conversation. Deleting a conversation that
// was never saved is not an error.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *FileStore) lastSessionPath() string {
	return filepath.Join(s.baseDir, "last_session")
}

// SetLastSession records the session ID for the next process start.
func (s *FileStore) SetLastSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if err := os.WriteFile(s.lastSessionPath(), []byte(sessionID), 0o644); err != nil {
		return fmt.Errorf("write last session: %w", err)
	}
	return nil
}

// LastSession returns the recorded session ID, or "" when none is.
func (s *FileStore) LastSession(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrStoreClosed
	}

	data, err := os.ReadFile(s.lastSessionPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read last session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
