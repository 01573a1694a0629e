package gate

// Signals are the inputs to the transition decision. Each is owned by a
// different source: onboarding completion is persisted, the user identity
// comes from the auth provider, PIN binding is derived from the vault, and
// session unlock is set only by successful PIN entry.
type Signals struct {
	// SeenOnboarding is true once the onboarding flow has completed (or has
	// been backfilled because a PIN is already bound).
	SeenOnboarding bool
	// UserID is the authenticated user, or empty when signed out.
	UserID string
	// PinBound is true when a passcode record exists AND its owner matches
	// UserID.
	PinBound bool
	// Unlocked is true once the user has passed PIN entry this session.
	Unlocked bool
	// Current is the active destination.
	Current Destination
}

// Decide returns the destination the gate should navigate to, or false when
// the current destination is already allowed. The rules form an ordered
// decision list evaluated first-match-wins; each rule assumes every earlier
// rule did not match, so the ordering must not be changed.
func Decide(s Signals) (Destination, bool) {
	if s.Current == Loading {
		return Root, false
	}

	// 1. Onboarding not seen: force the onboarding flow. Login is also
	// permitted here so a "skip" action that signs the user in does not
	// bounce straight back.
	if !s.SeenOnboarding && s.Current != Onboarding && s.Current != Login {
		return Onboarding, true
	}

	// 2. Signed out: force login, unless already somewhere in the auth flow.
	if s.UserID == "" && !isAuthFlow(s.Current) {
		return Login, true
	}

	if s.UserID != "" {
		// 3. Signed in but no PIN bound to this user: force PIN setup.
		if !s.PinBound && s.Current != PinSetup {
			return PinSetup, true
		}

		if s.PinBound {
			// 4. PIN was just set: continue to biometrics enrollment.
			if s.Current == PinSetup {
				return BiometricsSetup, true
			}

			// 5. Fully set up but parked on an entry screen: enter the app.
			if s.Current == Onboarding || s.Current == Login {
				return MainApp, true
			}

			// 6. Fully set up at the root route: enter the app.
			if s.Current == Root {
				return MainApp, true
			}

			// 7. In the app without having unlocked this session: lock.
			if !isAuthFlow(s.Current) && !s.Unlocked && s.Current != AppUnlock {
				return AppUnlock, true
			}

			// 8. Unlock succeeded while on the lock screen: enter the app.
			if s.Current == AppUnlock && s.Unlocked {
				return MainApp, true
			}
		}
	}

	return Root, false
}
