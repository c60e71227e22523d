package utils

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as the JSON body with the given status code. The status
// is already sent when an encoding error is returned.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}
