// Package passcode implements the local transaction-PIN vault: salted
// iterative hashing of a short numeric secret, and verification under a
// failure-count cooldown policy. The PIN is never stored in plaintext.
package passcode

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/finsync/gatekeeper/internal/util"
	"github.com/finsync/gatekeeper/storage"
)

// Storage keys for the persisted passcode record. Salt and hash exist
// together or not at all; failure count and last-failure timestamp are
// cleared together on every success and on every explicit set.
const (
	keySalt         = "pin.salt"
	keyHash         = "pin.hash"
	keyLength       = "pin.length"
	keyFailureCount = "pin.failure_count"
	keyLastFailure  = "pin.last_failure_ts"
	keyOwner        = "pin.owner"
)

const saltLength = 16

// VerifyResult is the outcome of a verification attempt. Wrong PIN, cooldown
// and no-PIN-configured are all expressed here as data, never as errors.
type VerifyResult struct {
	Success bool
	// RemainingCooldown is how long verification will keep refusing
	// attempts regardless of correctness. Zero when no cooldown applies.
	RemainingCooldown time.Duration
}

// Vault adjudicates PIN set/verify/clear against a SecureStore. Verification
// attempts are serialized by an internal single-flight lock so concurrent
// failing attempts cannot under-count failures.
type Vault struct {
	store storage.SecureStore
	kdf   KDF
	now   func() time.Time

	// mu serializes VerifyPasscode and SetPasscode per record.
	mu sync.Mutex
}

// Option customizes a Vault.
type Option func(*Vault)

// WithKDF replaces the default iterated-SHA256 KDF. Changing the KDF
// invalidates any previously stored hash; callers are expected to re-set the
// PIN after switching.
func WithKDF(kdf KDF) Option {
	return func(v *Vault) {
		v.kdf = kdf
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// New creates a Vault over the given store.
func New(store storage.SecureStore, opts ...Option) *Vault {
	v := &Vault{
		store: store,
		kdf:   DefaultKDF(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsSet reports whether a passcode record currently exists. No side effects.
func (v *Vault) IsSet(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := v.store.Get(keyHash)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading pin hash: %w", err)
	}
	return true, nil
}

// SetOption customizes SetPasscode.
type SetOption func(*setOptions)

type setOptions struct {
	owner string
}

// BoundTo records the authenticated user the new PIN belongs to. A PIN set
// by one user must never unlock the app for another on a shared device.
func BoundTo(owner string) SetOption {
	return func(o *setOptions) {
		o.owner = owner
	}
}

// SetPasscode replaces the stored passcode record with a freshly salted hash
// of pin and resets the lockout counters. Composition policy (digits, length)
// is the caller's responsibility; see ValidatePIN.
func (v *Vault) SetPasscode(ctx context.Context, pin string, opts ...SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pin == "" {
		return fmt.Errorf("pin must not be empty")
	}
	var so setOptions
	for _, opt := range opts {
		opt(&so)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	salt, err := util.RandomBytes(saltLength)
	if err != nil {
		return err
	}

	digest, err := v.derive(pin, salt)
	if err != nil {
		return err
	}
	defer util.WipeBytes(digest)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := v.store.Set(keySalt, util.HexEncode(salt)); err != nil {
		return fmt.Errorf("writing pin salt: %w", err)
	}
	if err := v.store.Set(keyHash, util.HexEncode(digest)); err != nil {
		return fmt.Errorf("writing pin hash: %w", err)
	}
	if err := v.store.Set(keyLength, strconv.Itoa(len(pin))); err != nil {
		return fmt.Errorf("writing pin length: %w", err)
	}
	if so.owner != "" {
		if err := v.store.Set(keyOwner, so.owner); err != nil {
			return fmt.Errorf("writing pin owner: %w", err)
		}
	} else {
		if err := v.store.Delete(keyOwner); err != nil {
			return fmt.Errorf("clearing pin owner: %w", err)
		}
	}

	// A fresh PIN starts with a clean lockout slate.
	return v.clearFailureState()
}

// VerifyPasscode adjudicates a candidate PIN under the cooldown policy.
// While a cooldown window is open the stored hash is never read or compared
// and the failure counter is untouched, even for a correct PIN.
func (v *Vault) VerifyPasscode(ctx context.Context, pin string) (VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return VerifyResult{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	failures, lastFailure, err := v.failureState()
	if err != nil {
		return VerifyResult{}, err
	}

	if cd := cooldownFor(failures); cd > 0 {
		if elapsed := v.now().Sub(lastFailure); elapsed < cd {
			return VerifyResult{Success: false, RemainingCooldown: cd - elapsed}, nil
		}
	}

	salt, digest, ok, err := v.record()
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		// No PIN configured.
		return VerifyResult{}, nil
	}

	if err := ctx.Err(); err != nil {
		return VerifyResult{}, err
	}

	candidate, err := v.derive(pin, salt)
	if err != nil {
		return VerifyResult{}, err
	}
	defer util.WipeBytes(candidate)

	if subtle.ConstantTimeCompare(candidate, digest) == 1 {
		if err := v.clearFailureState(); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{Success: true}, nil
	}

	failures++
	if err := v.store.Set(keyFailureCount, strconv.Itoa(failures)); err != nil {
		return VerifyResult{}, fmt.Errorf("writing pin failure count: %w", err)
	}
	stamp := strconv.FormatInt(v.now().UnixMilli(), 10)
	if err := v.store.Set(keyLastFailure, stamp); err != nil {
		return VerifyResult{}, fmt.Errorf("writing pin failure timestamp: %w", err)
	}
	return VerifyResult{Success: false, RemainingCooldown: cooldownFor(failures)}, nil
}

// ClearPasscode removes the passcode record entirely. Idempotent.
func (v *Vault) ClearPasscode(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, key := range []string{keySalt, keyHash, keyLength, keyOwner, keyFailureCount, keyLastFailure} {
		if err := v.store.Delete(key); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}
	return nil
}

// Owner returns the user identifier the current PIN is bound to, or "" when
// no binding exists.
func (v *Vault) Owner(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	owner, err := v.store.Get(keyOwner)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading pin owner: %w", err)
	}
	return owner, nil
}

// Length returns the digit count of the configured PIN, or 0 when no PIN is
// set. It informs entry UIs only; verification never consults it.
func (v *Vault) Length(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := v.store.Get(keyLength)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading pin length: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing pin length: %w", err)
	}
	return n, nil
}

// derive hashes pin under salt with the candidate material held in a
// memguard buffer for its in-memory lifetime.
func (v *Vault) derive(pin string, salt []byte) ([]byte, error) {
	buf := memguard.NewBufferFromBytes([]byte(pin))
	defer buf.Destroy()
	return v.kdf.Derive(buf.Bytes(), salt)
}

// record reads the salt and hash. ok is false if either is absent.
func (v *Vault) record() (salt, digest []byte, ok bool, err error) {
	rawSalt, err := v.store.Get(keySalt)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("reading pin salt: %w", err)
	}
	rawHash, err := v.store.Get(keyHash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("reading pin hash: %w", err)
	}

	salt, err = util.HexDecode(rawSalt)
	if err != nil {
		return nil, nil, false, fmt.Errorf("decoding pin salt: %w", err)
	}
	digest, err = util.HexDecode(rawHash)
	if err != nil {
		return nil, nil, false, fmt.Errorf("decoding pin hash: %w", err)
	}
	return salt, digest, true, nil
}

func (v *Vault) failureState() (failures int, lastFailure time.Time, err error) {
	rawCount, err := v.store.Get(keyFailureCount)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("reading pin failure count: %w", err)
	}
	failures, err = strconv.Atoi(rawCount)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parsing pin failure count: %w", err)
	}

	rawStamp, err := v.store.Get(keyLastFailure)
	if errors.Is(err, storage.ErrNotFound) {
		return failures, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("reading pin failure timestamp: %w", err)
	}
	ms, err := strconv.ParseInt(rawStamp, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parsing pin failure timestamp: %w", err)
	}
	return failures, time.UnixMilli(ms), nil
}

func (v *Vault) clearFailureState() error {
	if err := v.store.Delete(keyFailureCount); err != nil {
		return fmt.Errorf("clearing pin failure count: %w", err)
	}
	if err := v.store.Delete(keyLastFailure); err != nil {
		return fmt.Errorf("clearing pin failure timestamp: %w", err)
	}
	return nil
}
