package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// genericFailure is the only detail storage or crypto failures leak to
// clients; specifics go to the log.
const genericFailure = "something went wrong, try again"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeCooldown sends a 429 with a Retry-After hint for an open lockout
// window.
func writeCooldown(w http.ResponseWriter, remaining time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(remaining))
	writeJSON(w, http.StatusTooManyRequests, VerifyPinResponse{
		Success:             false,
		RemainingCooldownMs: remaining.Milliseconds(),
	})
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
