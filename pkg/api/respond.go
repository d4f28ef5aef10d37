package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes body as the response, merging in a "status" field.
// status is human text and empty on success, matching the envelope every
// endpoint documents.
func writeJSON(w http.ResponseWriter, code int, status string, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["status"] = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, message, nil)
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

func unsupportedMedia(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnsupportedMediaType, message)
}

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
