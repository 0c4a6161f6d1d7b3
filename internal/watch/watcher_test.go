package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/bom-preview/internal/testutil"
	"github.com/vrsandeep/bom-preview/internal/watch"
)

func startWatcher(t *testing.T, dir string) (*watch.Watcher, <-chan string) {
	t.Helper()
	seen := make(chan string, 16)
	w := watch.New(dir, 50*time.Millisecond, func(ctx context.Context, path string) error {
		seen <- filepath.Base(path)
		return nil
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop() })
	return w, seen
}

func expectFile(t *testing.T, seen <-chan string, want string) {
	t.Helper()
	select {
	case got := <-seen:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func expectNothing(t *testing.T, seen <-chan string) {
	t.Helper()
	select {
	case got := <-seen:
		t.Fatalf("unexpected file handled: %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIsWorkbook(t *testing.T) {
	assert.True(t, watch.IsWorkbook("bom.xlsx"))
	assert.True(t, watch.IsWorkbook("/drop/BOM.XLSX"))
	assert.False(t, watch.IsWorkbook("~$bom.xlsx"))
	assert.False(t, watch.IsWorkbook(".bom.xlsx"))
	assert.False(t, watch.IsWorkbook("bom.csv"))
}

func TestWatcher_NewFileIsHandled(t *testing.T) {
	dir := t.TempDir()
	_, seen := startWatcher(t, dir)

	testutil.WriteTestXLSX(t, dir, "bom.xlsx", testutil.SampleBOM(t))
	expectFile(t, seen, "bom.xlsx")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	_, seen := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$bom.xlsx"), []byte("lock"), 0644))
	expectNothing(t, seen)
}

func TestWatcher_TriggerExistingOnce(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteTestXLSX(t, dir, "a.xlsx", testutil.SampleBOM(t))
	testutil.WriteTestXLSX(t, dir, "b.xlsx", testutil.SampleBOM(t))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644))

	w, seen := startWatcher(t, dir)
	existing, err := w.Existing()
	require.NoError(t, err)
	require.Len(t, existing, 2)

	for _, p := range existing {
		w.Trigger(p)
	}
	expectFile(t, seen, "a.xlsx")
	expectFile(t, seen, "b.xlsx")

	// Unchanged files are not handled again.
	w.Trigger(existing[0])
	expectNothing(t, seen)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := watch.New(t.TempDir(), 0, func(context.Context, string) error { return nil })
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_StartFailsForMissingDir(t *testing.T) {
	w := watch.New(filepath.Join(t.TempDir(), "missing"), 0, nil)
	assert.Error(t, w.Start(context.Background()))
}
