package core

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/payload"
	"github.com/vrsandeep/bom-preview/internal/tracker"
	"github.com/vrsandeep/bom-preview/internal/workbook"
)

// ErrNoPreview is returned when an import is requested before a preview
// result is available.
var ErrNoPreview = errors.New("no finished preview to import")

// ErrSuperseded is returned when a newer job takes over the slot while one
// is still being followed.
var ErrSuperseded = errors.New("job superseded")

// ProgressFunc observes status changes of a tracked job.
type ProgressFunc func(slot models.Slot, rec models.StatusRecord)

// Preview uploads a workbook, tracks the preview job to completion and
// returns the validated preview result along with its raw JSON.
func (a *App) Preview(ctx context.Context, filename string, content []byte, onProgress ProgressFunc) (*models.PreviewResult, []byte, error) {
	wb, err := workbook.Preflight(filename, content)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Uploading %s (%d sheets, %d data rows)", wb.Filename, len(wb.Sheets), wb.DataRows())

	enq := a.client.EnqueuePreview(ctx, wb.Filename, content)
	if !enq.Queued() {
		return nil, nil, fmt.Errorf("failed to enqueue preview: %s", enq.Message)
	}
	st, err := a.follow(ctx, models.SlotPreview, enq, onProgress)
	if err != nil {
		return nil, nil, err
	}
	return payload.ParsePreviewResult(st.Result)
}

// Import queues an import of the preview held in the preview slot and tracks
// it to completion, returning the import result.
func (a *App) Import(ctx context.Context, onProgress ProgressFunc) ([]byte, error) {
	t, ok := a.registry.Get(models.SlotPreview)
	if !ok {
		return nil, ErrNoPreview
	}
	raw, ok := t.Result()
	if !ok {
		return nil, ErrNoPreview
	}
	return a.ImportPreview(ctx, raw, onProgress)
}

// ImportPreview imports a preview result obtained earlier, e.g. from a file.
func (a *App) ImportPreview(ctx context.Context, preview []byte, onProgress ProgressFunc) ([]byte, error) {
	_, body, err := payload.ParsePreviewResult(preview)
	if err != nil {
		return nil, err
	}
	enq := a.client.EnqueueImport(ctx, body)
	if !enq.Queued() {
		return nil, fmt.Errorf("failed to enqueue import job: %s", enq.Message)
	}
	st, err := a.follow(ctx, models.SlotImport, enq, onProgress)
	if err != nil {
		return nil, err
	}
	return st.Result, nil
}

// follow tracks enq in slot, reporting each change until the job resolves.
// Updates stop being reported once another job takes over the slot.
func (a *App) follow(ctx context.Context, slot models.Slot, enq models.EnqueueResponse, onProgress ProgressFunc) (tracker.State, error) {
	t, err := a.Track(slot, enq)
	if err != nil {
		return tracker.State{}, err
	}
	report := func(rec models.StatusRecord) {
		if onProgress != nil && a.registry.Current(t) {
			onProgress(slot, rec)
		}
	}

	report(t.Status())
	for {
		select {
		case <-t.Changes():
			report(t.Status())
		case <-t.Done():
			if cur, ok := a.registry.Get(slot); ok && cur != t {
				return t.State(), fmt.Errorf("%w: job %s replaced by %s", ErrSuperseded, t.JobID(), cur.JobID())
			}
			st, err := t.Wait(ctx)
			report(st.Record)
			return st, err
		case <-ctx.Done():
			t.Stop()
			return t.State(), ctx.Err()
		}
	}
}
