package gate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/finsync/gatekeeper/passcode"
	"github.com/finsync/gatekeeper/storage"
)

// Storage keys owned by the gate.
const (
	keySeenOnboarding  = "gate.seen_onboarding"
	keySessionUnlocked = "gate.session_unlocked"
	keyBiometrics      = "gate.biometrics_enabled"
	keyLastBackground  = "gate.last_background_ts"
)

// maxTransitionsPerPass bounds a single settle loop. The rule graph is
// acyclic for any fixed signal snapshot, so the bound is never hit in
// practice; it guards against a misbehaving Navigator.
const maxTransitionsPerPass = 8

// AuthProvider exposes the externally-owned identity. CurrentUser returns
// the signed-in user's identifier, or "" when signed out. Errors are treated
// by the Controller as "signed out" (fail closed).
type AuthProvider interface {
	CurrentUser() (string, error)
}

// AuthProviderFunc adapts a function to the AuthProvider interface.
type AuthProviderFunc func() (string, error)

func (f AuthProviderFunc) CurrentUser() (string, error) { return f() }

// Navigator performs a screen transition. Implementations belong to the UI
// host; the Controller guarantees at most one call is in flight at a time.
type Navigator interface {
	Navigate(ctx context.Context, dest Destination) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, dest Destination) error

func (f NavigatorFunc) Navigate(ctx context.Context, dest Destination) error { return f(ctx, dest) }

// Controller owns the session/navigation state: it recomputes the derived
// signals from the store and vault, runs the Decide rule list to a fixpoint,
// and drives the Navigator. It is the single writer of the gate's persisted
// flags. All storage read failures during signal computation are treated as
// condition-false, routing toward the most restrictive screen.
type Controller struct {
	store       storage.SecureStore
	vault       *passcode.Vault
	auth        AuthProvider
	nav         Navigator
	debounce    time.Duration
	relockAfter time.Duration
	now         func() time.Time

	mu       sync.Mutex
	ready    bool
	closed   bool
	userID   string
	current  Destination
	inFlight bool
	pending  bool
	lastNav  time.Time
	subs     []chan Destination
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithDebounce sets the settle window after a navigation during which
// externally triggered re-evaluations are deferred. Zero disables deferral.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.debounce = d
	}
}

// WithRelockAfter sets how long the app may stay backgrounded before the
// session is locked again on return. Zero disables inactivity relock.
func WithRelockAfter(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.relockAfter = d
	}
}

// WithControllerClock overrides the time source, for tests.
func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a Controller. Call Start once the host is ready to
// navigate; no transitions fire before that.
func NewController(store storage.SecureStore, vault *passcode.Vault, auth AuthProvider, nav Navigator, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:    store,
		vault:    vault,
		auth:     auth,
		nav:      nav,
		debounce: 75 * time.Millisecond,
		now:      time.Now,
		current:  Loading,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start performs the first auth check and runs the initial evaluation.
// An auth provider error is treated as signed-out.
func (c *Controller) Start(ctx context.Context) error {
	uid := ""
	if c.auth != nil {
		if id, err := c.auth.CurrentUser(); err == nil {
			uid = id
		}
	}

	c.mu.Lock()
	c.userID = uid
	c.ready = true
	c.current = Root
	c.mu.Unlock()

	return c.evaluate(ctx)
}

// Close tears the controller down and closes all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

// Destination returns the currently allowed destination.
func (c *Controller) Destination() Destination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// UserID returns the identity the gate currently operates under.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Subscribe returns a channel receiving every applied destination change.
// Slow receivers drop notifications rather than blocking the gate.
func (c *Controller) Subscribe() <-chan Destination {
	ch := make(chan Destination, 8)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subs = append(c.subs, ch)
	return ch
}

// SetUser records an identity change. Whenever the identity differs from the
// previous one the session-unlocked flag is removed from storage before any
// re-evaluation, so a PIN unlock never survives an account switch.
func (c *Controller) SetUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	changed := userID != c.userID
	c.userID = userID
	c.mu.Unlock()

	if changed {
		if err := c.store.Delete(keySessionUnlocked); err != nil {
			return fmt.Errorf("resetting session unlock: %w", err)
		}
	}
	return c.evaluate(ctx)
}

// Refresh re-runs the decision list against the current signals. Hosts call
// it after mutating the vault directly (setting or clearing a PIN).
func (c *Controller) Refresh(ctx context.Context) error {
	return c.evaluate(ctx)
}

// RefreshUser re-queries the auth provider and applies the result. Provider
// errors fail closed to signed-out.
func (c *Controller) RefreshUser(ctx context.Context) error {
	uid := ""
	if c.auth != nil {
		if id, err := c.auth.CurrentUser(); err == nil {
			uid = id
		}
	}
	return c.SetUser(ctx, uid)
}

// CompleteOnboarding permanently records that onboarding has been seen and
// moves on to login. The onboarding screen owns its exit transition; the
// rule list only prevents re-entry.
func (c *Controller) CompleteOnboarding(ctx context.Context) error {
	if err := c.store.Set(keySeenOnboarding, "true"); err != nil {
		return fmt.Errorf("recording onboarding: %w", err)
	}

	c.mu.Lock()
	atOnboarding := c.current == Onboarding
	c.mu.Unlock()
	if atOnboarding {
		if err := c.navigateTo(ctx, Login); err != nil {
			return err
		}
	}
	return c.evaluate(ctx)
}

// MarkUnlocked records a successful PIN entry for this session.
func (c *Controller) MarkUnlocked(ctx context.Context) error {
	if err := c.store.Set(keySessionUnlocked, "true"); err != nil {
		return fmt.Errorf("recording session unlock: %w", err)
	}
	return c.evaluate(ctx)
}

// Lock clears the session unlock, forcing PIN entry before the app is
// reachable again.
func (c *Controller) Lock(ctx context.Context) error {
	if err := c.store.Delete(keySessionUnlocked); err != nil {
		return fmt.Errorf("clearing session unlock: %w", err)
	}
	return c.evaluate(ctx)
}

// CompleteBiometricsSetup leaves the biometrics enrollment screen. The
// screen itself owns this transition; the rule list deliberately never
// routes away from BiometricsSetup.
func (c *Controller) CompleteBiometricsSetup(ctx context.Context) error {
	c.mu.Lock()
	atSetup := c.current == BiometricsSetup
	c.mu.Unlock()

	if atSetup {
		if err := c.navigateTo(ctx, MainApp); err != nil {
			return err
		}
	}
	return c.evaluate(ctx)
}

// SetBiometricsEnabled persists the biometric-unlock preference.
func (c *Controller) SetBiometricsEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		if err := c.store.Delete(keyBiometrics); err != nil {
			return fmt.Errorf("clearing biometrics preference: %w", err)
		}
		return nil
	}
	if err := c.store.Set(keyBiometrics, "true"); err != nil {
		return fmt.Errorf("recording biometrics preference: %w", err)
	}
	return nil
}

// BiometricsEnabled reads the biometric-unlock preference. Read errors
// report false.
func (c *Controller) BiometricsEnabled(ctx context.Context) bool {
	return c.flag(keyBiometrics)
}

// NoteBackground records the moment the app left the foreground.
func (c *Controller) NoteBackground(ctx context.Context) error {
	stamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.store.Set(keyLastBackground, stamp); err != nil {
		return fmt.Errorf("recording background timestamp: %w", err)
	}
	return nil
}

// NoteForeground re-evaluates on return to the foreground, locking the
// session first when the app was backgrounded longer than the relock window.
func (c *Controller) NoteForeground(ctx context.Context) error {
	if c.relockAfter > 0 {
		if raw, err := c.store.Get(keyLastBackground); err == nil {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				if c.now().Sub(time.UnixMilli(ms)) >= c.relockAfter {
					return c.Lock(ctx)
				}
			}
		}
	}
	return c.evaluate(ctx)
}

// signals builds the current signal snapshot. Every storage or vault read
// error collapses to condition-false; a PIN bound to a different user reads
// as no PIN at all.
func (c *Controller) signals(ctx context.Context, userID string, current Destination) Signals {
	seen := c.flag(keySeenOnboarding)
	unlocked := c.flag(keySessionUnlocked)

	bound := false
	if userID != "" {
		isSet, err := c.vault.IsSet(ctx)
		if err == nil && isSet {
			owner, err := c.vault.Owner(ctx)
			bound = err == nil && owner == userID
		}
	}

	// A bound PIN implies onboarding happened at some point; backfill the
	// flag so a restored device cannot get stuck on the onboarding screen.
	if bound && !seen {
		if err := c.store.Set(keySeenOnboarding, "true"); err == nil {
			seen = true
		}
	}

	return Signals{
		SeenOnboarding: seen,
		UserID:         userID,
		PinBound:       bound,
		Unlocked:       unlocked,
		Current:        current,
	}
}

func (c *Controller) flag(key string) bool {
	v, err := c.store.Get(key)
	return err == nil && v == "true"
}

// evaluate runs the decision list to a fixpoint, applying each transition
// through the Navigator. Exactly one evaluation is in flight at a time;
// triggers arriving during an evaluation, or inside the debounce window
// after one, are coalesced into a single deferred re-evaluation.
func (c *Controller) evaluate(ctx context.Context) error {
	c.mu.Lock()
	if !c.ready || c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.inFlight {
		c.pending = true
		c.mu.Unlock()
		return nil
	}
	if c.debounce > 0 && !c.lastNav.IsZero() {
		if wait := c.debounce - c.now().Sub(c.lastNav); wait > 0 {
			if !c.pending {
				c.pending = true
				time.AfterFunc(wait, c.runDeferred)
			}
			c.mu.Unlock()
			return nil
		}
	}
	c.inFlight = true
	uid := c.userID
	cur := c.current
	c.mu.Unlock()

	var navErr error
	applied := false
	visited := map[Destination]bool{cur: true}
	for i := 0; i < maxTransitionsPerPass; i++ {
		s := c.signals(ctx, uid, cur)
		next, ok := Decide(s)
		if !ok {
			break
		}
		if err := c.nav.Navigate(ctx, next); err != nil {
			navErr = fmt.Errorf("navigating to %s: %w", next, err)
			break
		}
		cur = next
		applied = true

		c.mu.Lock()
		c.current = next
		c.notifyLocked(next)
		c.mu.Unlock()

		// Cycle guard for signal states outside the supported flows.
		if visited[next] {
			break
		}
		visited[next] = true
	}

	c.mu.Lock()
	c.inFlight = false
	if applied {
		c.lastNav = c.now()
	}
	rerun := c.pending
	if rerun && c.debounce > 0 {
		time.AfterFunc(c.debounce, c.runDeferred)
		rerun = false
	}
	c.pending = false
	c.mu.Unlock()

	if rerun {
		return c.evaluate(ctx)
	}
	return navErr
}

// runDeferred is the debounce-timer callback for coalesced evaluations.
func (c *Controller) runDeferred() {
	c.mu.Lock()
	c.pending = false
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	_ = c.evaluate(context.Background())
}

// navigateTo applies a host-initiated transition outside the rule list.
func (c *Controller) navigateTo(ctx context.Context, dest Destination) error {
	if err := c.nav.Navigate(ctx, dest); err != nil {
		return fmt.Errorf("navigating to %s: %w", dest, err)
	}
	c.mu.Lock()
	c.current = dest
	c.notifyLocked(dest)
	c.lastNav = c.now()
	c.mu.Unlock()
	return nil
}

func (c *Controller) notifyLocked(dest Destination) {
	for _, ch := range c.subs {
		select {
		case ch <- dest:
		default:
		}
	}
}
