// Package gate implements the app-lock session gate: a state machine that
// decides, from the current onboarding/auth/PIN/unlock signals, the single
// screen the user is allowed to see, and drives navigation there at most once
// per signal change.
package gate

// Destination identifies a navigation target.
type Destination string

const (
	// Root is the unset/initial route before any decision applies.
	Root Destination = ""
	// Loading is the transient pseudo-state held until assets and the first
	// auth check complete. No transitions fire while loading.
	Loading Destination = "loading"

	Onboarding      Destination = "onboarding"
	Login           Destination = "login"
	PinSetup        Destination = "pin-setup"
	BiometricsSetup Destination = "biometrics-setup"
	AppUnlock       Destination = "app-unlock"
	MainApp         Destination = "main"
)

// isAuthFlow reports whether d is one of the pre-main screens.
func isAuthFlow(d Destination) bool {
	switch d {
	case Onboarding, Login, PinSetup, BiometricsSetup, AppUnlock:
		return true
	}
	return false
}
