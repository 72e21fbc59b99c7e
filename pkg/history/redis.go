package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists conversations in Redis, mirroring the backend's
// own session storage so transcripts survive client restarts.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "chatlink:conv:").
	Prefix string
	// TTL is the conversation expiry (0 = never expire).
	TTL time.Duration
}

// NewRedisStore creates a Redis-backed conversation store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient builds a store from an existing client.
// Useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "chatlink:conv:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save creates or replaces the conversation for its session ID.
func (s *RedisStore) Save(ctx context.Context, conv *Conversation) error {
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	if err := s.client.Set(ctx, s.key(conv.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Load retrieves the conversation for a session.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Conversation, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// Delete removes the stored conversation.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// SetLastSession records the session ID for the next process start.
func (s *RedisStore) SetLastSession(ctx context.Context, sessionID string) error {
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.prefix+"last_session", sessionID, s.ttl).Err(); err != nil {
		return fmt.Errorf("save last session: %w", err)
	}
	return nil
}

// LastSession returns the recorded session ID, or "" when none is.
func (s *RedisStore) LastSession(ctx context.Context) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}

	id, err := s.client.Get(ctx, s.prefix+"last_session").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get last session: %w", err)
	}
	return id, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
