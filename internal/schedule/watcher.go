// Package schedule fires a daily run at a time read from a small file.
package schedule

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often the schedule file is re-read.
const DefaultPollInterval = 100 * time.Millisecond

// Clock reads wall time.
type Clock interface {
	Now() time.Time
}

// Config locates the schedule file and sets the poll rate.
type Config struct {
	File         string
	PollInterval time.Duration
}

// Watcher re-reads an "HH:MM" file on every poll and fires once each time
// the scheduled instant falls between the previous check and now.
type Watcher struct {
	cfg       Config
	clock     Clock
	logger    *zap.Logger
	lastCheck time.Time
}

// NewWatcher creates a Watcher whose first window starts now, so a time
// already passed today does not fire at startup.
func NewWatcher(cfg Config, clock Clock, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.File == "" {
		cfg.File = "watcher.txt"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Watcher{cfg: cfg, clock: clock, logger: logger, lastCheck: clock.Now()}
}

// ParseTime parses "HH:MM" into hour and minute.
func ParseTime(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule %q is not HH:MM", raw)
	}
	hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule %q has an invalid hour", raw)
	}
	minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule %q has an invalid minute", raw)
	}
	return hour, minute, nil
}

// scheduled returns today's scheduled instant in now's location.
func (w *Watcher) scheduled(now time.Time) (time.Time, error) {
	raw, err := os.ReadFile(w.cfg.File)
	if err != nil {
		return time.Time{}, fmt.Errorf("read schedule file: %w", err)
	}
	hour, minute, err := ParseTime(string(raw))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), nil
}

// Check reports whether a run is due. A due check advances the window.
func (w *Watcher) Check() bool {
	now := w.clock.Now()
	at, err := w.scheduled(now)
	if err != nil {
		w.logger.Warn("schedule unreadable", zap.String("file", w.cfg.File), zap.Error(err))
		return false
	}
	if w.lastCheck.Before(at) && !now.Before(at) {
		w.lastCheck = now
		return true
	}
	return false
}

// Run polls until ctx is done and calls fire for each due window. fire
// runs on the polling goroutine, so a long run delays the next check.
func (w *Watcher) Run(ctx context.Context, fire func(ctx context.Context)) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	w.logger.Info("watching schedule", zap.String("file", w.cfg.File), zap.Duration("poll", w.cfg.PollInterval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.Check() {
				w.logger.Info("schedule window reached")
				fire(ctx)
			}
		}
	}
}
