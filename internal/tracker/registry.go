package tracker

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/vrsandeep/bom-preview/internal/models"
)

var (
	ErrUnknownSlot    = errors.New("unknown slot")
	ErrRegistryClosed = errors.New("tracker registry is shut down")
)

// Registry maps a fixed set of slots to at most one tracker each. Starting a
// job in an occupied slot stops the previous tracker first.
type Registry struct {
	mu     sync.Mutex
	slots  map[models.Slot]*Tracker
	known  map[models.Slot]bool
	closed bool
}

// NewRegistry creates a registry accepting only the given slots.
func NewRegistry(slots ...models.Slot) *Registry {
	r := &Registry{
		slots: make(map[models.Slot]*Tracker),
		known: make(map[models.Slot]bool),
	}
	for _, s := range slots {
		r.known[s] = true
	}
	return r
}

// Start creates and starts a tracker for cfg.Slot, superseding whatever the
// slot held. The previous tracker's channels are fully stopped before the new
// tracker's channels open.
func (r *Registry) Start(cfg Config) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if !r.known[cfg.Slot] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, cfg.Slot)
	}

	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if prev := r.slots[cfg.Slot]; prev != nil {
		log.Printf("[registry] slot %s: superseding job %s with %s", cfg.Slot, prev.JobID(), cfg.JobID)
		prev.Stop()
		delete(r.slots, cfg.Slot)
	}
	if err := t.Start(); err != nil {
		return nil, err
	}
	r.slots[cfg.Slot] = t
	return t, nil
}

// Get returns the tracker currently occupying slot. A tracker stays in its
// slot after reaching a terminal state so its outcome can still be read.
func (r *Registry) Get(slot models.Slot) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.slots[slot]
	return t, ok
}

// Current reports whether t is still the tracker occupying its slot.
func (r *Registry) Current(t *Tracker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[t.Slot()] == t
}

// Stop stops and removes the tracker in slot, if any.
func (r *Registry) Stop(slot models.Slot) {
	r.mu.Lock()
	t := r.slots[slot]
	delete(r.slots, slot)
	r.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// StopAll stops every tracker and refuses further starts.
func (r *Registry) StopAll() {
	r.mu.Lock()
	trackers := make([]*Tracker, 0, len(r.slots))
	for slot, t := range r.slots {
		trackers = append(trackers, t)
		delete(r.slots, slot)
	}
	r.closed = true
	r.mu.Unlock()

	for _, t := range trackers {
		t.Stop()
	}
	log.Printf("[registry] stopped %d tracker(s)", len(trackers))
}
