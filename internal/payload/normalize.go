// Package payload turns the loosely shaped bodies returned by the ERP
// backend into the canonical records the tracker works with.
package payload

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/vrsandeep/bom-preview/internal/models"
)

// resultKeys are the sections every preview result carries. A body holding
// all of them is a finished result even without an explicit status.
var resultKeys = []string{"rubber_validation", "steel_validation", "rm_validation", "prod_validation"}

// Unwrap strips the {"message": {...}} envelope the backend wraps responses
// in. Only an object-valued message is treated as an envelope; a string
// message belongs to the record itself.
func Unwrap(raw []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	inner, ok := obj["message"]
	if !ok {
		return raw
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '{' {
		return raw
	}
	return inner
}

// Normalize converts any status or result body into a StatusRecord for
// expectedJobID. It never fails: anything it cannot make sense of becomes
// an "unknown" record.
func Normalize(raw []byte, expectedJobID string) models.StatusRecord {
	unknown := models.StatusRecord{JobID: expectedJobID, Status: models.StatusUnknown}

	inner := Unwrap(bytes.TrimSpace(raw))
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(inner, &obj); err != nil || obj == nil {
		return unknown
	}

	if looksLikeResult(obj) {
		return models.StatusRecord{
			JobID:    expectedJobID,
			Status:   models.StatusFinished,
			Progress: models.IntPtr(100),
			Result:   json.RawMessage(inner),
		}
	}

	var status string
	if err := json.Unmarshal(obj["status"], &status); err != nil {
		return unknown
	}
	st := models.JobStatus(status)
	if !st.Valid() {
		return unknown
	}

	rec := models.StatusRecord{
		JobID:   stringField(obj, "job_id"),
		Status:  st,
		Stage:   stringField(obj, "stage"),
		Message: stringField(obj, "message"),
	}
	if rec.JobID == "" {
		rec.JobID = expectedJobID
	}
	if p, ok := progressField(obj); ok {
		rec.Progress = &p
	}
	if res, ok := obj["result"]; ok && isObject(res) {
		rec.Result = res
	}
	return rec
}

func looksLikeResult(obj map[string]json.RawMessage) bool {
	for _, k := range resultKeys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

func stringField(obj map[string]json.RawMessage, key string) string {
	var s string
	if v, ok := obj[key]; ok {
		_ = json.Unmarshal(v, &s)
	}
	return s
}

// progressField reads a numeric progress and clamps it into 0..100.
func progressField(obj map[string]json.RawMessage) (int, bool) {
	v, ok := obj["progress"]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil || math.IsNaN(f) {
		return 0, false
	}
	p := int(math.Round(f))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p, true
}

func isObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}

// UnwrapResult strips the envelope from a result body whatever the type of
// the wrapped value; result payloads are opaque.
func UnwrapResult(raw []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	inner, ok := obj["message"]
	if !ok || bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		return raw
	}
	return inner
}
