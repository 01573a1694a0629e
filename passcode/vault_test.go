package passcode

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsync/gatekeeper/storage"
	"github.com/finsync/gatekeeper/storage/memory"
)

// fakeClock is an adjustable time source for cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestVault(t *testing.T) (*Vault, *memory.Store, *fakeClock) {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	return New(store, WithClock(clock.Now)), store, clock
}

func TestIsSet(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	set, err := v.IsSet(ctx)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, v.SetPasscode(ctx, "1234"))

	set, err = v.IsSet(ctx)
	require.NoError(t, err)
	assert.True(t, set)
}

func TestVerifyCorrectAndWrongPIN(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	res, err := v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.RemainingCooldown)

	res, err = v.VerifyPasscode(ctx, "4321")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.RemainingCooldown, "first failure carries no cooldown")
}

func TestVerifyWithoutPINConfigured(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	res, err := v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.RemainingCooldown)
}

// Two set operations with the same PIN must produce different stored hashes,
// because salts are drawn fresh each time.
func TestSetPasscodeSaltsAreUnique(t *testing.T) {
	ctx := context.Background()
	v, store, _ := newTestVault(t)

	require.NoError(t, v.SetPasscode(ctx, "1234"))
	firstHash, err := store.Get("pin.hash")
	require.NoError(t, err)
	firstSalt, err := store.Get("pin.salt")
	require.NoError(t, err)

	require.NoError(t, v.SetPasscode(ctx, "1234"))
	secondHash, err := store.Get("pin.hash")
	require.NoError(t, err)
	secondSalt, err := store.Get("pin.salt")
	require.NoError(t, err)

	assert.NotEqual(t, firstSalt, secondSalt)
	assert.NotEqual(t, firstHash, secondHash)
}

// After setting a PIN nothing persisted may contain the plaintext.
func TestNoPlaintextAtRest(t *testing.T) {
	ctx := context.Background()
	v, store, _ := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234", BoundTo("user-a")))

	for _, key := range []string{"pin.salt", "pin.hash", "pin.length", "pin.owner"} {
		val, err := store.Get(key)
		require.NoError(t, err)
		assert.NotEqual(t, "1234", val, "key %s", key)
	}

	// The stored hash is the hex digest, not any encoding of the plaintext.
	hash, err := store.Get("pin.hash")
	require.NoError(t, err)
	assert.NotContains(t, hash, hex.EncodeToString([]byte("1234")))
	assert.Len(t, hash, 64)
}

func TestSuccessResetsFailureState(t *testing.T) {
	ctx := context.Background()
	v, store, _ := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	for i := 0; i < 3; i++ {
		res, err := v.VerifyPasscode(ctx, "0000")
		require.NoError(t, err)
		require.False(t, res.Success)
	}

	res, err := v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = store.Get("pin.failure_count")
	assert.ErrorIs(t, err, storage.ErrNotFound, "success must clear the counter")
	_, err = store.Get("pin.last_failure_ts")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Counting starts from 1 again: a single wrong attempt is not cooled down.
	res, err = v.VerifyPasscode(ctx, "0000")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.RemainingCooldown)
}

func TestFifthFailureOpensCooldown(t *testing.T) {
	ctx := context.Background()
	v, _, clock := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	var res VerifyResult
	var err error
	for i := 0; i < 5; i++ {
		res, err = v.VerifyPasscode(ctx, "0000")
		require.NoError(t, err)
		require.False(t, res.Success)
	}
	assert.Equal(t, 30*time.Second, res.RemainingCooldown)

	// Within the window even the correct PIN is refused and the counter is
	// untouched.
	clock.Advance(10 * time.Second)
	res, err = v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 20*time.Second, res.RemainingCooldown)

	// Still refused, still not consuming attempts.
	res, err = v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 20*time.Second, res.RemainingCooldown)

	// Once the window closes the correct PIN unlocks and resets state.
	clock.Advance(21 * time.Second)
	res, err = v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCooldownEscalation(t *testing.T) {
	ctx := context.Background()
	v, _, clock := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	fail := func() VerifyResult {
		t.Helper()
		res, err := v.VerifyPasscode(ctx, "0000")
		require.NoError(t, err)
		require.False(t, res.Success)
		return res
	}

	for i := 0; i < 4; i++ {
		assert.Zero(t, fail().RemainingCooldown, "attempt %d", i+1)
	}
	assert.Equal(t, 30*time.Second, fail().RemainingCooldown) // 5th

	clock.Advance(31 * time.Second)
	assert.Equal(t, 30*time.Second, fail().RemainingCooldown) // 6th
	clock.Advance(31 * time.Second)
	assert.Equal(t, 30*time.Second, fail().RemainingCooldown) // 7th
	clock.Advance(31 * time.Second)
	assert.Equal(t, time.Minute, fail().RemainingCooldown) // 8th
	clock.Advance(61 * time.Second)
	assert.Equal(t, time.Minute, fail().RemainingCooldown) // 9th
	clock.Advance(61 * time.Second)
	assert.Equal(t, 5*time.Minute, fail().RemainingCooldown) // 10th
}

func TestSetPasscodeClearsLockout(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	for i := 0; i < 5; i++ {
		_, err := v.VerifyPasscode(ctx, "0000")
		require.NoError(t, err)
	}

	require.NoError(t, v.SetPasscode(ctx, "5678"))

	res, err := v.VerifyPasscode(ctx, "5678")
	require.NoError(t, err)
	assert.True(t, res.Success, "fresh PIN starts with a clean lockout slate")
}

func TestClearPasscodeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	v, store, _ := newTestVault(t)
	require.NoError(t, v.SetPasscode(ctx, "1234", BoundTo("user-a")))

	require.NoError(t, v.ClearPasscode(ctx))
	require.NoError(t, v.ClearPasscode(ctx))

	set, err := v.IsSet(ctx)
	require.NoError(t, err)
	assert.False(t, set)

	for _, key := range []string{"pin.salt", "pin.hash", "pin.length", "pin.owner", "pin.failure_count", "pin.last_failure_ts"} {
		_, err := store.Get(key)
		assert.ErrorIs(t, err, storage.ErrNotFound, "key %s", key)
	}
}

func TestOwnerBinding(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	owner, err := v.Owner(ctx)
	require.NoError(t, err)
	assert.Empty(t, owner)

	require.NoError(t, v.SetPasscode(ctx, "1234", BoundTo("user-a")))
	owner, err = v.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-a", owner)

	// Re-setting without a binding clears the previous owner.
	require.NoError(t, v.SetPasscode(ctx, "1234"))
	owner, err = v.Owner(ctx)
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestLength(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	n, err := v.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, v.SetPasscode(ctx, "135792"))
	n, err = v.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestVerifyHonorsContextCancellation(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.VerifyPasscode(ctx, "1234")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentFailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	v := New(store)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	const attempts = 4
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.VerifyPasscode(ctx, "0000")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := store.Get("pin.failure_count")
	require.NoError(t, err)
	assert.Equal(t, "4", count, "serialized verification must not under-count failures")
}

func TestWithArgon2idKDF(t *testing.T) {
	ctx := context.Background()
	params := DefaultArgon2idParams()
	params.MemoryKiB = 8 * 1024
	kdf, err := NewArgon2id(params)
	require.NoError(t, err)

	v := New(memory.NewStore(), WithKDF(kdf))
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	res, err := v.VerifyPasscode(ctx, "1234")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = v.VerifyPasscode(ctx, "4321")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

// failingStore wraps a SecureStore and fails reads for a chosen key, to
// exercise storage error propagation.
type failingStore struct {
	storage.SecureStore
	failKey string
	err     error
}

func (s *failingStore) Get(key string) (string, error) {
	if key == s.failKey || strings.HasPrefix(key, s.failKey) {
		return "", s.err
	}
	return s.SecureStore.Get(key)
}

func TestStorageErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	v := New(inner)
	require.NoError(t, v.SetPasscode(ctx, "1234"))

	storeErr := assert.AnError
	v2 := New(&failingStore{SecureStore: inner, failKey: "pin.hash", err: storeErr})

	_, err := v2.IsSet(ctx)
	assert.ErrorIs(t, err, storeErr)

	_, err = v2.VerifyPasscode(ctx, "1234")
	assert.ErrorIs(t, err, storeErr)
}
