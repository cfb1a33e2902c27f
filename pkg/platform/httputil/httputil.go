// Package httputil centralizes small HTTP response helpers so handlers and
// middleware produce consistent JSON envelopes.
package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code. Encoding
// errors after the status line are unrecoverable and ignored.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
