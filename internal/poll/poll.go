// Package poll periodically fetches a job's status as a fallback for the
// realtime channel.
package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultInterval is the period between status fetches.
const DefaultInterval = 1500 * time.Millisecond

// FetchFunc retrieves the raw status body for the tracked job.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Adapter runs one repeating fetch until stopped. Failed ticks are logged and
// skipped; the next tick proceeds on schedule with no backoff.
type Adapter struct {
	name     string
	interval time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
}

func New(name string, interval time.Duration) *Adapter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Adapter{name: name, interval: interval}
}

// Start begins polling. Each successful fetch is passed to onStatus. A timer
// already running on this adapter is stopped first so ticks never overlap.
func (a *Adapter) Start(fetch FetchFunc, onStatus func([]byte)) error {
	a.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(a.interval).WaitForSchedule().Do(func() {
		if ctx.Err() != nil {
			return
		}
		body, err := fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[poll:%s] status fetch failed: %v", a.name, err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		onStatus(body)
	})
	if err != nil {
		cancel()
		return err
	}

	a.mu.Lock()
	a.scheduler = s
	a.cancel = cancel
	a.mu.Unlock()

	s.StartAsync()
	return nil
}

// Stop clears the timer and cancels an in-flight fetch. Safe to call when
// already stopped.
func (a *Adapter) Stop() {
	a.mu.Lock()
	s := a.scheduler
	cancel := a.cancel
	a.scheduler = nil
	a.cancel = nil
	a.mu.Unlock()

	if s == nil {
		return
	}
	cancel()
	s.Stop()
}

// Active reports whether the timer is running.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scheduler != nil
}
