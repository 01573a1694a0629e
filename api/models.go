package api

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse reports the gate and vault state a UI shell needs to render.
type StatusResponse struct {
	DeviceID          string `json:"device_id,omitempty"`
	Destination       string `json:"destination"`
	UserID            string `json:"user_id,omitempty"`
	PinSet            bool   `json:"pin_set"`
	PinLength         int    `json:"pin_length,omitempty"`
	BiometricsEnabled bool   `json:"biometrics_enabled"`
}

// SetPinRequest carries a new PIN. The plaintext only ever transits the
// loopback interface and is hashed before it touches storage.
type SetPinRequest struct {
	Pin string `json:"pin"`
}

// VerifyPinRequest carries a candidate PIN.
type VerifyPinRequest struct {
	Pin string `json:"pin"`
}

// VerifyPinResponse is the adjudication outcome. RemainingCooldownMs is
// non-zero while the lockout window refuses attempts.
type VerifyPinResponse struct {
	Success             bool  `json:"success"`
	RemainingCooldownMs int64 `json:"remaining_cooldown_ms"`
}

// SetUserRequest records a sign-in from the host's auth flow.
type SetUserRequest struct {
	UserID string `json:"user_id"`
}

// SetBiometricsRequest toggles the biometric-unlock preference.
type SetBiometricsRequest struct {
	Enabled bool `json:"enabled"`
}
