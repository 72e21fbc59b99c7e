package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/electromart/chatlink/chat"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "test:", 0)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleConversation() *Conversation {
	return &Conversation{
		SessionID: "sess-1",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "where is my order?", Timestamp: time.Now().UTC()},
			{ID: "r1", Role: chat.RoleAssistant, Agent: "logistics", InReplyTo: "m1", Content: "it shipped"},
		},
		CurrentAgent: "logistics",
		UpdatedAt:    time.Now().UTC(),
	}
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	conv := sampleConversation()
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(loaded.Messages))
	}
	if loaded.Messages[1].InReplyTo != "m1" {
		t.Errorf("InReplyTo lost in round trip: %q", loaded.Messages[1].InReplyTo)
	}
	if loaded.CurrentAgent != "logistics" {
		t.Errorf("CurrentAgent = %q, want logistics", loaded.CurrentAgent)
	}
}

func TestRedisStore_LoadNotFound(t *testing.T) {
	store := setupRedisStore(t)

	_, err := store.Load(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleConversation()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStore_ClosedStore(t *testing.T) {
	store := setupRedisStore(t)
	_ = store.Close()

	if err := store.Save(context.Background(), sampleConversation()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	conv := sampleConversation()
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(loaded.Messages))
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestRedisStore_LastSession(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	id, err := store.LastSession(ctx)
	if err != nil || id != "" {
		t.Fatalf("LastSession before any record = %q, %v; want empty, nil", id, err)
	}

	if err := store.SetLastSession(ctx, "sess-1"); err != nil {
		t.Fatalf("SetLastSession failed: %v", err)
	}
	id, err = store.LastSession(ctx)
	if err != nil {
		t.Fatalf("LastSession failed: %v", err)
	}
	if id != "sess-1" {
		t.Errorf("LastSession = %q, want sess-1", id)
	}
}

func TestFileStore_LastSession(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	id, err := store.LastSession(ctx)
	if err != nil || id != "" {
		t.Fatalf("LastSession before any record = %q, %v; want empty, nil", id, err)
	}

	if err := store.SetLastSession(ctx, "sess-1"); err != nil {
		t.Fatalf("SetLastSession failed: %v", err)
	}

	// The record must survive a process restart.
	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	id, err = reopened.LastSession(ctx)
	if err != nil {
		t.Fatalf("LastSession failed: %v", err)
	}
	if id != "sess-1" {
		t.Errorf("LastSession after reopen = %q, want sess-1", id)
	}
}

func TestAutosaver_Fires(t *testing.T) {
	saved := make(chan struct{}, 4)
	a, err := NewAutosaver(time.Second, func() error {
		select {
		case saved <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("NewAutosaver failed: %v", err)
	}

	a.Start()
	defer a.Stop()

	select {
	case <-saved:
	case <-time.After(3 * time.Second):
		t.Fatal("autosave never fired")
	}
}
