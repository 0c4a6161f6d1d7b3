package payload

import (
	"encoding/json"
	"strings"

	"github.com/vrsandeep/bom-preview/internal/models"
)

// NormalizeEnqueue interprets an enqueue response body. Anything other than
// a queued job with both an id and a topic becomes an error response whose
// message is the most readable text available.
func NormalizeEnqueue(raw []byte) models.EnqueueResponse {
	inner := Unwrap(raw)

	var resp models.EnqueueResponse
	if err := json.Unmarshal(inner, &resp); err == nil && resp.Queued() {
		return models.EnqueueResponse{Status: models.StatusQueued, JobID: resp.JobID, Topic: resp.Topic}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(inner, &obj); err == nil && obj != nil {
		if msg := stringField(obj, "message"); msg != "" {
			return enqueueError(msg)
		}
		if msg := stringField(obj, "error"); msg != "" {
			return enqueueError(msg)
		}
	}

	var s string
	if err := json.Unmarshal(inner, &s); err == nil && s != "" {
		return enqueueError(s)
	}
	if text := strings.TrimSpace(string(inner)); text != "" && text != "null" {
		return enqueueError(text)
	}
	return enqueueError("Unknown enqueue response")
}

func enqueueError(msg string) models.EnqueueResponse {
	return models.EnqueueResponse{Status: models.StatusError, Message: msg}
}
