package mockerp

import (
	"encoding/json"
	"net/http"
)

// respondWithMessage writes payload wrapped in the backend's {"message": ...}
// envelope.
func respondWithMessage(w http.ResponseWriter, code int, payload interface{}) {
	respondWithJSON(w, code, map[string]interface{}{"message": payload})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "ValidationError", "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError mimics the backend's exception response shape.
func respondWithError(w http.ResponseWriter, code int, excType, message string) {
	respondWithJSON(w, code, map[string]string{
		"exc_type":         excType,
		"_server_messages": message,
		"message":          message,
	})
}
