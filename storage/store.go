// Package storage defines the secure key-value store abstraction backing the
// passcode vault and session gate. Implementations must be app-sandboxed and
// persistent; each Get/Set/Delete is individually atomic.
package storage

import "errors"

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("key not found")

// SecureStore is the persistent key-value store collaborator. Values are
// opaque strings; callers encode binary material (salts, hashes) as hex.
type SecureStore interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)
	// Set creates or replaces the value for key.
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string) error
}
