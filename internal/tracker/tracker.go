// Package tracker reconciles the realtime and polling views of a background
// job into a single status, and fetches the job's result exactly once.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/payload"
	"github.com/vrsandeep/bom-preview/internal/poll"
)

var (
	ErrStopped = errors.New("tracker stopped before the job completed")
	ErrTimeout = errors.New("job timed out")
)

const (
	jobFailedMessage    = "job failed"
	resultFailurePrefix = "result retrieval failed: "
	inboxSize           = 16
)

// FailureKind tells apart the ways a tracked job can end in error.
type FailureKind string

const (
	FailureNone FailureKind = ""
	// FailureJob means the job itself reported an error.
	FailureJob FailureKind = "job"
	// FailureResult means the job finished but its result could not be retrieved.
	FailureResult FailureKind = "result"
	// FailureTimeout means the job never reached a terminal state in time.
	FailureTimeout FailureKind = "timeout"
)

// PushChannel is a realtime subscription delivering raw messages for a topic.
type PushChannel interface {
	Subscribe(topic string, onMessage func(json.RawMessage))
	Stop()
	Active() bool
}

// PollChannel repeatedly runs a status fetch.
type PollChannel interface {
	Start(fetch poll.FetchFunc, onStatus func([]byte)) error
	Stop()
	Active() bool
}

// Config describes one job to track.
type Config struct {
	Slot  models.Slot
	JobID string
	Topic string

	Push PushChannel
	Poll PollChannel

	FetchStatus poll.FetchFunc
	FetchResult func(ctx context.Context) (json.RawMessage, error)

	// MaxDuration, when positive, bounds how long the job may stay
	// non-terminal before the tracker gives up on it.
	MaxDuration time.Duration
}

// State is a point-in-time copy of a tracker.
type State struct {
	Slot            models.Slot
	JobID           string
	Topic           string
	Record          models.StatusRecord
	Result          json.RawMessage
	Failure         FailureKind
	TerminalHandled bool
	Stopped         bool
	PushActive      bool
	PollActive      bool
}

// Tracker owns one job's lifecycle. Both channels only hand observations to
// the tracker's inbox; a single goroutine applies them, so the terminal
// transition is decided in one place.
type Tracker struct {
	cfg Config

	inbox  chan observation
	sealed chan struct{} // closed once no more observations are accepted
	done   chan struct{} // closed once terminal handling ends or the tracker stops

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	record          models.StatusRecord
	result          json.RawMessage
	failure         FailureKind
	terminalHandled bool
	stopped         bool
	started         bool

	changes  chan struct{}
	timer    *time.Timer
	sealOnce sync.Once
	doneOnce sync.Once
	stopOnce sync.Once
}

// observation is one inbox entry. timeout marks the tracker's own deadline
// rather than anything the backend said.
type observation struct {
	rec     models.StatusRecord
	timeout bool
}

// New creates a tracker; nothing runs until Start.
func New(cfg Config) (*Tracker, error) {
	if cfg.JobID == "" {
		return nil, errors.New("tracker: job id is required")
	}
	if cfg.FetchResult == nil {
		return nil, errors.New("tracker: result fetcher is required")
	}
	if cfg.Poll != nil && cfg.FetchStatus == nil {
		return nil, errors.New("tracker: status fetcher is required for polling")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		cfg:     cfg,
		inbox:   make(chan observation, inboxSize),
		sealed:  make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		record:  models.StatusRecord{JobID: cfg.JobID, Status: models.StatusQueued, Progress: models.IntPtr(0)},
		changes: make(chan struct{}, 1),
	}, nil
}

// Start launches the reconciliation loop and opens both channels.
func (t *Tracker) Start() error {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return fmt.Errorf("tracker for job %s already started", t.cfg.JobID)
	}
	t.started = true
	t.mu.Unlock()

	go t.loop()

	if t.cfg.Push != nil && t.cfg.Topic != "" {
		t.cfg.Push.Subscribe(t.cfg.Topic, func(raw json.RawMessage) {
			t.Deliver(payload.Normalize(raw, t.cfg.JobID))
		})
	}
	if t.cfg.Poll != nil {
		err := t.cfg.Poll.Start(t.cfg.FetchStatus, func(body []byte) {
			t.Deliver(payload.Normalize(body, t.cfg.JobID))
		})
		if err != nil {
			t.Stop()
			return fmt.Errorf("start polling for job %s: %w", t.cfg.JobID, err)
		}
	}
	if d := t.cfg.MaxDuration; d > 0 {
		t.mu.Lock()
		t.timer = time.AfterFunc(d, func() {
			t.send(observation{
				rec: models.StatusRecord{
					JobID:   t.cfg.JobID,
					Status:  models.StatusError,
					Message: fmt.Sprintf("%v after %s", ErrTimeout, d),
				},
				timeout: true,
			})
		})
		t.mu.Unlock()
	}
	log.Printf("[tracker:%s] tracking job %s (topic %s)", t.cfg.Slot, t.cfg.JobID, t.cfg.Topic)
	return nil
}

// Deliver hands one normalized observation to the tracker. Observations
// arriving after the terminal state or after Stop are dropped.
func (t *Tracker) Deliver(rec models.StatusRecord) {
	t.send(observation{rec: rec})
}

func (t *Tracker) send(obs observation) {
	select {
	case <-t.sealed:
		return
	default:
	}
	select {
	case t.inbox <- obs:
	case <-t.sealed:
	}
}

func (t *Tracker) loop() {
	for {
		select {
		case obs := <-t.inbox:
			if t.apply(obs) {
				return
			}
		case <-t.ctx.Done():
			return
		}
	}
}

// apply commits one observation and reports whether the job reached its
// terminal state.
func (t *Tracker) apply(obs observation) bool {
	rec := obs.rec
	if rec.JobID != t.cfg.JobID {
		log.Printf("[tracker:%s] discarding update for job %s", t.cfg.Slot, rec.JobID)
		return false
	}
	t.mu.RLock()
	handled := t.terminalHandled || t.stopped
	current := t.record.Status
	t.mu.RUnlock()
	if handled {
		return false
	}

	switch rec.Status {
	case models.StatusUnknown:
		// Never let a malformed observation mask a known state.
		if current == models.StatusUnknown {
			t.commit(rec)
		}
		return false
	case models.StatusQueued, models.StatusRunning:
		t.commit(rec)
		return false
	case models.StatusFinished:
		t.finish(rec)
		return true
	case models.StatusError:
		kind := FailureJob
		if obs.timeout {
			kind = FailureTimeout
		}
		t.fail(rec, kind)
		return true
	}
	return false
}

func (t *Tracker) commit(rec models.StatusRecord) {
	rec.Result = nil
	t.mu.Lock()
	t.record = rec
	t.mu.Unlock()
	t.notify()
}

// beginTerminal sets terminalHandled and shuts both channels. Only the loop
// goroutine calls it, at most once.
func (t *Tracker) beginTerminal(rec models.StatusRecord, kind FailureKind) {
	t.mu.Lock()
	t.terminalHandled = true
	t.record = rec
	t.failure = kind
	t.mu.Unlock()
	t.seal()
	t.stopChannels()
	t.notify()
}

func (t *Tracker) finish(rec models.StatusRecord) {
	if rec.Progress == nil {
		rec.Progress = models.IntPtr(100)
	}
	result := rec.Result
	rec.Result = nil
	t.beginTerminal(rec, FailureNone)

	if len(result) == 0 {
		var err error
		result, err = t.cfg.FetchResult(t.ctx)
		if t.ctx.Err() != nil {
			// Stopped or superseded while the fetch was in flight.
			return
		}
		if err != nil {
			log.Printf("[tracker:%s] job %s finished but result fetch failed: %v", t.cfg.Slot, t.cfg.JobID, err)
			t.mu.Lock()
			t.record = models.StatusRecord{
				JobID:    t.cfg.JobID,
				Status:   models.StatusError,
				Progress: rec.Progress,
				Stage:    rec.Stage,
				Message:  resultFailurePrefix + err.Error(),
			}
			t.failure = FailureResult
			t.mu.Unlock()
			t.notify()
			t.markDone()
			return
		}
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.result = result
	t.mu.Unlock()
	log.Printf("[tracker:%s] job %s finished", t.cfg.Slot, t.cfg.JobID)
	t.notify()
	t.markDone()
}

func (t *Tracker) fail(rec models.StatusRecord, kind FailureKind) {
	if rec.Message == "" {
		rec.Message = jobFailedMessage
	}
	rec.Result = nil
	t.beginTerminal(rec, kind)
	log.Printf("[tracker:%s] job %s failed: %s", t.cfg.Slot, t.cfg.JobID, rec.Message)
	t.markDone()
}

func (t *Tracker) seal() {
	t.sealOnce.Do(func() { close(t.sealed) })
}

func (t *Tracker) markDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Tracker) stopChannels() {
	t.mu.Lock()
	timer := t.timer
	t.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if t.cfg.Push != nil {
		t.cfg.Push.Stop()
	}
	if t.cfg.Poll != nil {
		t.cfg.Poll.Stop()
	}
}

func (t *Tracker) notify() {
	select {
	case t.changes <- struct{}{}:
	default:
	}
}

// Stop tears the tracker down: both channels are stopped before it returns,
// and any result fetch still in flight is cancelled and its outcome dropped.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		t.seal()
		t.cancel()
		t.stopChannels()
		t.markDone()
		t.notify()
	})
}

// State returns a copy of the tracker's current view.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := State{
		Slot:            t.cfg.Slot,
		JobID:           t.cfg.JobID,
		Topic:           t.cfg.Topic,
		Record:          t.record,
		Result:          t.result,
		Failure:         t.failure,
		TerminalHandled: t.terminalHandled,
		Stopped:         t.stopped,
	}
	if t.cfg.Push != nil {
		st.PushActive = t.cfg.Push.Active()
	}
	if t.cfg.Poll != nil {
		st.PollActive = t.cfg.Poll.Active()
	}
	return st
}

// Status returns the latest committed status record.
func (t *Tracker) Status() models.StatusRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.record
}

// Result returns the job's result once it has been retrieved.
func (t *Tracker) Result() (json.RawMessage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.result != nil
}

// JobID returns the tracked job's id.
func (t *Tracker) JobID() string { return t.cfg.JobID }

// Slot returns the slot the tracker was started for.
func (t *Tracker) Slot() models.Slot { return t.cfg.Slot }

// Changes signals after every committed change. Signals coalesce: a reader
// should call State after each receive.
func (t *Tracker) Changes() <-chan struct{} { return t.changes }

// Done is closed once terminal handling has finished or the tracker stopped.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Wait blocks until the job is resolved. It returns the final state, and an
// error when the job failed, its result could not be fetched, or the tracker
// was stopped first.
func (t *Tracker) Wait(ctx context.Context) (State, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
	st := t.State()
	if st.Record.Status == models.StatusError {
		return st, &JobError{JobID: st.JobID, Kind: st.Failure, Message: st.Record.Message}
	}
	if st.Result == nil {
		return st, ErrStopped
	}
	return st, nil
}

// JobError is a terminal failure of a tracked job.
type JobError struct {
	JobID   string
	Kind    FailureKind
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %s", e.JobID, e.Message)
}

func (e *JobError) Is(target error) bool {
	return target == ErrTimeout && e.Kind == FailureTimeout
}
