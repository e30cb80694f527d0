package utils

import (
	"encoding/json"
	"net/http"
)

// WriteJSONResponse encodes data as the JSON body of an HTTP response.
// Encoding errors are swallowed: the status line is already written.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
