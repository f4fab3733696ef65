package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// SessionReaper periodically evicts idle capture sessions
type SessionReaper struct {
	sessions *SessionService
	interval time.Duration

	// Background loop control
	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

// NewSessionReaper creates a reaper that sweeps every interval
func NewSessionReaper(sessions *SessionService, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		sessions: sessions,
		interval: interval,
	}
}

// Start begins sweeping in the background until ctx is done or Stop is called
func (r *SessionReaper) Start(ctx context.Context) error {
	ctx = logging.EnsureLogger(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil // Already running
	}
	if r.interval <= 0 {
		return fmt.Errorf("reaper interval must be positive, got %v", r.interval)
	}

	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})

	logging.Infow(ctx, "Starting session reaper", "interval", r.interval)
	go r.reapLoop(ctx, r.stopChan, r.done)
	return nil
}

// Stop halts the background loop and waits for it to exit
func (r *SessionReaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
}

// IsRunning returns whether the reaper loop is active
func (r *SessionReaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *SessionReaper) reapLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Session reaper stopping due to context cancellation")
			return
		case <-stop:
			logging.Infow(ctx, "Session reaper stopping due to stop signal")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep runs one eviction pass; a panic is logged and the loop keeps going
func (r *SessionReaper) sweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Session reaper: recovered from panic",
				"error", rec, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	if removed := r.sessions.ReapIdle(ctx); removed > 0 {
		logging.Infow(ctx, "Session reaper: evicted idle sessions",
			"removed", removed, "remaining", r.sessions.SessionCount())
	}
}
