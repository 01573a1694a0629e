package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideRuleOrdering(t *testing.T) {
	tests := []struct {
		name string
		s    Signals
		want Destination
		move bool
	}{
		{
			name: "loading holds all transitions",
			s:    Signals{Current: Loading},
			move: false,
		},
		{
			name: "fresh install goes to onboarding",
			s:    Signals{Current: Root},
			want: Onboarding, move: true,
		},
		{
			name: "onboarding not repeated while on it",
			s:    Signals{Current: Onboarding},
			move: false,
		},
		{
			name: "login permitted before onboarding completes",
			s:    Signals{Current: Login},
			move: false,
		},
		{
			name: "onboarding wins over signed-in state",
			s:    Signals{Current: MainApp, UserID: "a", PinBound: true, Unlocked: true},
			want: Onboarding, move: true,
		},
		{
			name: "signed out forces login",
			s:    Signals{SeenOnboarding: true, Current: MainApp},
			want: Login, move: true,
		},
		{
			name: "signed out already in auth flow stays put",
			s:    Signals{SeenOnboarding: true, Current: AppUnlock},
			move: false,
		},
		{
			name: "signed in without bound pin forces setup",
			s:    Signals{SeenOnboarding: true, UserID: "a", Current: MainApp},
			want: PinSetup, move: true,
		},
		{
			name: "unbound pin on setup screen stays put",
			s:    Signals{SeenOnboarding: true, UserID: "a", Current: PinSetup},
			move: false,
		},
		{
			name: "freshly set pin continues to biometrics",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Current: PinSetup},
			want: BiometricsSetup, move: true,
		},
		{
			name: "set up user parked on login enters app",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Unlocked: true, Current: Login},
			want: MainApp, move: true,
		},
		{
			name: "set up user parked on onboarding enters app",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Unlocked: true, Current: Onboarding},
			want: MainApp, move: true,
		},
		{
			name: "set up user at root enters app",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Unlocked: true, Current: Root},
			want: MainApp, move: true,
		},
		{
			name: "in app without session unlock is locked",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Current: MainApp},
			want: AppUnlock, move: true,
		},
		{
			name: "lock screen released after unlock",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Unlocked: true, Current: AppUnlock},
			want: MainApp, move: true,
		},
		{
			name: "lock screen holds while locked",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Current: AppUnlock},
			move: false,
		},
		{
			name: "biometrics setup is never auto-left",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Unlocked: true, Current: BiometricsSetup},
			move: false,
		},
		{
			name: "landing in app already unlocked stays put",
			s:    Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Unlocked: true, Current: MainApp},
			move: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, move := Decide(tt.s)
			assert.Equal(t, tt.move, move)
			if tt.move {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// Root with a bound PIN but no session unlock settles at AppUnlock via
// MainApp; Decide alone takes the first step.
func TestDecideRelaunchTakesTwoSteps(t *testing.T) {
	s := Signals{SeenOnboarding: true, UserID: "a", PinBound: true, Current: Root}

	first, move := Decide(s)
	assert.True(t, move)
	assert.Equal(t, MainApp, first)

	s.Current = first
	second, move := Decide(s)
	assert.True(t, move)
	assert.Equal(t, AppUnlock, second)

	s.Current = second
	_, move = Decide(s)
	assert.False(t, move, "app-unlock is the fixpoint while locked")
}
