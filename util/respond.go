package util

import (
	"encoding/json"
	"net/http"

	"meetup-backend/apperr"
)

type errorResponse struct {
	Status  string      `json:"status"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// WriteJSON encodes data with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode JSON response", http.StatusInternalServerError)
	}
}

// WriteError maps err to its status code. Internal causes are never sent to
// the client.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	WriteJSON(w, apperr.HTTPStatus(kind), errorResponse{
		Status:  "error",
		Kind:    kind,
		Message: apperr.Message(err),
	})
}
