package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/bom-preview/internal/models"
)

func slotConfig(slot models.Slot, jobID string, log *eventLog, results *resultFetcher) Config {
	status := &statusSource{}
	return Config{
		Slot:        slot,
		JobID:       jobID,
		Topic:       "topic-" + jobID,
		Push:        &fakePush{name: jobID, log: log},
		Poll:        &fakePoll{name: jobID, log: log},
		FetchStatus: status.fetch,
		FetchResult: results.fetch,
	}
}

func TestRegistry_SupersedeStopsPreviousChannelsFirst(t *testing.T) {
	events := &eventLog{}
	r := NewRegistry(models.SlotPreview, models.SlotImport)
	defer r.StopAll()

	first, err := r.Start(slotConfig(models.SlotPreview, "J1", events, &resultFetcher{}))
	require.NoError(t, err)
	second, err := r.Start(slotConfig(models.SlotPreview, "J2", events, &resultFetcher{}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"subscribe:J1:topic-J1", "poll:J1",
		"unsubscribe:J1", "unpoll:J1",
		"subscribe:J2:topic-J2", "poll:J2",
	}, events.list())

	assert.True(t, first.State().Stopped)
	assert.False(t, r.Current(first))
	assert.True(t, r.Current(second))

	got, ok := r.Get(models.SlotPreview)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistry_SupersededResultIsDiscarded(t *testing.T) {
	r := NewRegistry(models.SlotPreview)
	defer r.StopAll()

	slow := &resultFetcher{body: `{"old":true}`, delay: time.Second}
	cfg := slotConfig(models.SlotPreview, "J1", nil, slow)
	push := cfg.Push.(*fakePush)
	first, err := r.Start(cfg)
	require.NoError(t, err)

	push.emit(`{"status":"finished"}`)
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	second, err := r.Start(slotConfig(models.SlotPreview, "J2", nil, &resultFetcher{}))
	require.NoError(t, err)

	_, err = first.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	_, ok := first.Result()
	assert.False(t, ok)
	assert.Equal(t, models.StatusQueued, second.Status().Status)
}

func TestRegistry_SlotsAreIndependent(t *testing.T) {
	r := NewRegistry(models.SlotPreview, models.SlotImport)
	defer r.StopAll()

	preview, err := r.Start(slotConfig(models.SlotPreview, "P1", nil, &resultFetcher{}))
	require.NoError(t, err)
	imp, err := r.Start(slotConfig(models.SlotImport, "I1", nil, &resultFetcher{}))
	require.NoError(t, err)

	assert.False(t, preview.State().Stopped)
	assert.False(t, imp.State().Stopped)

	r.Stop(models.SlotImport)
	assert.True(t, imp.State().Stopped)
	_, ok := r.Get(models.SlotImport)
	assert.False(t, ok)
	assert.False(t, preview.State().Stopped)
}

func TestRegistry_UnknownSlot(t *testing.T) {
	r := NewRegistry(models.SlotPreview)
	_, err := r.Start(slotConfig("export", "J1", nil, &resultFetcher{}))
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestRegistry_StopAll(t *testing.T) {
	events := &eventLog{}
	r := NewRegistry(models.SlotPreview, models.SlotImport)

	p, err := r.Start(slotConfig(models.SlotPreview, "P1", events, &resultFetcher{}))
	require.NoError(t, err)
	i, err := r.Start(slotConfig(models.SlotImport, "I1", events, &resultFetcher{}))
	require.NoError(t, err)

	r.StopAll()
	for _, tr := range []*Tracker{p, i} {
		st := tr.State()
		assert.True(t, st.Stopped)
		assert.False(t, st.PushActive)
		assert.False(t, st.PollActive)
	}
	assert.ElementsMatch(t, []string{
		"subscribe:P1:topic-P1", "poll:P1", "subscribe:I1:topic-I1", "poll:I1",
		"unsubscribe:P1", "unpoll:P1", "unsubscribe:I1", "unpoll:I1",
	}, events.list())

	_, err = r.Start(slotConfig(models.SlotPreview, "P2", events, &resultFetcher{}))
	assert.ErrorIs(t, err, ErrRegistryClosed)
	r.StopAll()
}
