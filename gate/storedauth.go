package gate

import (
	"errors"
	"fmt"

	"github.com/finsync/gatekeeper/storage"
)

const keyAuthUser = "auth.user"

// StoredAuth is an AuthProvider backed by the secure store, for hosts that
// receive identity changes from an external sign-in flow and need them to
// survive a process restart. It is a stand-in for a real identity provider,
// not an authenticator: it trusts whatever the host records.
type StoredAuth struct {
	store storage.SecureStore
}

var _ AuthProvider = (*StoredAuth)(nil)

// NewStoredAuth creates a StoredAuth over the given store.
func NewStoredAuth(store storage.SecureStore) *StoredAuth {
	return &StoredAuth{store: store}
}

// CurrentUser returns the recorded identity, or "" when signed out.
func (a *StoredAuth) CurrentUser() (string, error) {
	uid, err := a.store.Get(keyAuthUser)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading auth user: %w", err)
	}
	return uid, nil
}

// SignIn records the identity.
func (a *StoredAuth) SignIn(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	if err := a.store.Set(keyAuthUser, userID); err != nil {
		return fmt.Errorf("recording auth user: %w", err)
	}
	return nil
}

// SignOut removes the identity. Idempotent.
func (a *StoredAuth) SignOut() error {
	if err := a.store.Delete(keyAuthUser); err != nil {
		return fmt.Errorf("clearing auth user: %w", err)
	}
	return nil
}
