// Package chatlink is a real-time support-chat client engine. It keeps
// one reconnecting websocket session to the support backend, tracks
// every in-flight user message, buffers sends while offline, and
// correlates asynchronous agent replies back to the questions that
// triggered them.
package chatlink

import (
	"context"
	"fmt"
	"log"
	"time"

	iobs "github.com/electromart/chatlink/internal/observability"
	"github.com/electromart/chatlink/pkg/config"
	"github.com/electromart/chatlink/pkg/correlate"
	"github.com/electromart/chatlink/pkg/guard"
	"github.com/electromart/chatlink/pkg/history"
	"github.com/electromart/chatlink/pkg/transport"
)

// Open builds a fully wired client from a configuration: websocket
// transport, duplicate guard, correlation options, and the configured
// history store with autosave. Extra options are applied last. The
// caller still calls Connect.
func Open(cfg *config.Config, extra ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Observability.Tracing {
		if err := iobs.InitFromEnv(); err != nil {
			log.Printf("Warning: failed to initialize tracing: %v", err)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// Present the last known session on the first dial so a restarted
	// process resumes the conversation it left off.
	var lastSession string
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lastSession, err = store.LastSession(ctx)
		cancel()
		if err != nil {
			log.Printf("Warning: failed to load last session: %v", err)
		}
	}

	sock := transport.NewSocket(transport.Config{
		URL:         cfg.ServerURL,
		SessionID:   lastSession,
		BaseDelay:   cfg.Reconnect.BaseDelay.Duration,
		MaxDelay:    cfg.Reconnect.MaxDelay.Duration,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	})

	opts := []Option{
		WithGuard(guard.New(cfg.Guard.Cooldown.Duration, cfg.Guard.SendWindow.Duration)),
		WithCorrelation(correlate.Options{
			PaletteSize:   cfg.Correlation.PaletteSize,
			ExcludeAgents: cfg.Correlation.ExcludeAgents,
		}),
	}
	if store != nil {
		opts = append(opts, WithHistory(store))
	}
	opts = append(opts, extra...)

	c := NewClient(sock, opts...)

	if store != nil {
		if err := c.StartAutosave(cfg.History.AutosaveInterval.Duration); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("start autosave: %w", err)
		}
	}
	return c, nil
}

func openStore(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Store {
	case "", "none":
		return nil, nil
	case "file":
		store, err := history.NewFileStore(cfg.History.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("open file history store: %w", err)
		}
		return store, nil
	case "redis":
		store, err := history.NewRedisStore(history.RedisConfig{
			Addr:     cfg.History.Redis.Addr,
			Password: cfg.History.Redis.Password,
			DB:       cfg.History.Redis.DB,
			Prefix:   cfg.History.Redis.Prefix,
			TTL:      cfg.History.Redis.TTL.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis history store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history store %q", cfg.History.Store)
	}
}
