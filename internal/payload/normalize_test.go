package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/bom-preview/internal/models"
)

const sampleResult = `{"status":"success","rubber_validation":[{"rubber_formular":"R1","status":"new","fields":{}}],"steel_validation":[],"rm_validation":[],"prod_validation":[]}`

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantJobID    string
		wantStatus   models.JobStatus
		wantProgress *int
		wantStage    string
		wantMessage  string
		wantResult   bool
	}{
		{
			name:       "queued without job id takes expected id",
			raw:        `{"status":"queued"}`,
			wantJobID:  "J1",
			wantStatus: models.StatusQueued,
		},
		{
			name:         "running with progress and stage",
			raw:          `{"job_id":"J1","status":"running","progress":40,"stage":"steel"}`,
			wantJobID:    "J1",
			wantStatus:   models.StatusRunning,
			wantProgress: models.IntPtr(40),
			wantStage:    "steel",
		},
		{
			name:         "envelope is unwrapped",
			raw:          `{"message":{"status":"running","progress":12.6}}`,
			wantJobID:    "J1",
			wantStatus:   models.StatusRunning,
			wantProgress: models.IntPtr(13),
		},
		{
			name:        "string message stays on the record",
			raw:         `{"status":"error","message":"sheet Steel missing"}`,
			wantJobID:   "J1",
			wantStatus:  models.StatusError,
			wantMessage: "sheet Steel missing",
		},
		{
			name:         "foreign job id is preserved for the tracker to reject",
			raw:          `{"job_id":"J9","status":"running","progress":150}`,
			wantJobID:    "J9",
			wantStatus:   models.StatusRunning,
			wantProgress: models.IntPtr(100),
		},
		{
			name:         "bare result is an implicit finish",
			raw:          sampleResult,
			wantJobID:    "J1",
			wantStatus:   models.StatusFinished,
			wantProgress: models.IntPtr(100),
			wantResult:   true,
		},
		{
			name:         "enveloped result is an implicit finish",
			raw:          `{"message":` + sampleResult + `}`,
			wantJobID:    "J1",
			wantStatus:   models.StatusFinished,
			wantProgress: models.IntPtr(100),
			wantResult:   true,
		},
		{name: "null", raw: `null`, wantJobID: "J1", wantStatus: models.StatusUnknown},
		{name: "empty", raw: ``, wantJobID: "J1", wantStatus: models.StatusUnknown},
		{name: "garbage", raw: `<html>502</html>`, wantJobID: "J1", wantStatus: models.StatusUnknown},
		{name: "array", raw: `[1,2,3]`, wantJobID: "J1", wantStatus: models.StatusUnknown},
		{name: "unrecognised status", raw: `{"status":"paused"}`, wantJobID: "J1", wantStatus: models.StatusUnknown},
		{name: "numeric status", raw: `{"status":3}`, wantJobID: "J1", wantStatus: models.StatusUnknown},
		{name: "three of four result keys", raw: `{"rubber_validation":[],"steel_validation":[],"rm_validation":[]}`, wantJobID: "J1", wantStatus: models.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec models.StatusRecord
			assert.NotPanics(t, func() { rec = Normalize([]byte(tt.raw), "J1") })
			assert.Equal(t, tt.wantJobID, rec.JobID)
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, tt.wantProgress, rec.Progress)
			assert.Equal(t, tt.wantStage, rec.Stage)
			assert.Equal(t, tt.wantMessage, rec.Message)
			assert.Equal(t, tt.wantResult, len(rec.Result) > 0)
		})
	}
}

func TestNormalize_ResultWithExplicitStatusIsStillFinished(t *testing.T) {
	raw := `{"status":"running","rubber_validation":[],"steel_validation":[],"rm_validation":[],"prod_validation":[]}`
	rec := Normalize([]byte(raw), "J1")
	assert.Equal(t, models.StatusFinished, rec.Status)
	assert.Equal(t, 100, rec.DisplayProgress())
}

func TestNormalizeEnqueue(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		resp := NormalizeEnqueue([]byte(`{"message":{"status":"queued","job_id":"J1","topic":"bom_preview_J1"}}`))
		require.True(t, resp.Queued())
		assert.Equal(t, "J1", resp.JobID)
		assert.Equal(t, "bom_preview_J1", resp.Topic)
	})

	t.Run("queued without topic is an error", func(t *testing.T) {
		resp := NormalizeEnqueue([]byte(`{"status":"queued","job_id":"J1"}`))
		assert.False(t, resp.Queued())
		assert.Equal(t, models.StatusError, resp.Status)
	})

	t.Run("server message", func(t *testing.T) {
		resp := NormalizeEnqueue([]byte(`{"status":"error","message":"Invalid file"}`))
		assert.Equal(t, models.StatusError, resp.Status)
		assert.Equal(t, "Invalid file", resp.Message)
	})

	t.Run("proxy error field", func(t *testing.T) {
		resp := NormalizeEnqueue([]byte(`{"error":"Missing file"}`))
		assert.Equal(t, "Missing file", resp.Message)
	})

	t.Run("plain text body", func(t *testing.T) {
		resp := NormalizeEnqueue([]byte(`Internal Server Error`))
		assert.Equal(t, "Internal Server Error", resp.Message)
	})

	t.Run("empty body", func(t *testing.T) {
		resp := NormalizeEnqueue(nil)
		assert.Equal(t, "Unknown enqueue response", resp.Message)
	})
}

func TestParsePreviewResult(t *testing.T) {
	res, body, err := ParsePreviewResult([]byte(`{"message":` + sampleResult + `}`))
	require.NoError(t, err)
	assert.Equal(t, models.PreviewCounts{Rubber: 1}, res.Counts())
	assert.JSONEq(t, sampleResult, string(body))

	_, _, err = ParsePreviewResult([]byte(`{"rubber_validation":[]}`))
	assert.Error(t, err)

	_, _, err = ParsePreviewResult([]byte(`{"rubber_validation":[{"status":"ok","fields":{"a":{"value":"1","status":"bogus"}}}],"steel_validation":[],"rm_validation":[],"prod_validation":[]}`))
	assert.Error(t, err)

	_, _, err = ParsePreviewResult([]byte(`not json`))
	assert.Error(t, err)
}
