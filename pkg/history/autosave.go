package history

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultAutosaveInterval is how often the conversation is persisted
// while the client runs. Save-on-close still happens regardless.
const DefaultAutosaveInterval = 5 * time.Minute

// Autosaver periodically invokes a save function on a fixed schedule.
type Autosaver struct {
	cron *cron.Cron
}

// NewAutosaver schedules save every interval. A non-positive interval
// falls back to the default.
func NewAutosaver(interval time.Duration, save func() error) (*Autosaver, error) {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := save(); err != nil {
			log.Printf("history: autosave failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule autosave: %w", err)
	}

	return &Autosaver{cron: c}, nil
}

// Start begins the schedule.
func (a *Autosaver) Start() { a.cron.Start() }

// Stop halts the schedule, waiting for an in-flight save to finish.
func (a *Autosaver) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}
