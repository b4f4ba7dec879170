package store

import "errors"

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrStoreCorrupt is returned by Open when the database cannot be
	// deserialized. The store does not partially open.
	ErrStoreCorrupt = errors.New("store is corrupt")

	// ErrIllegalTransition rejects a key request state change that is not
	// in the transition table. The stored state is unchanged.
	ErrIllegalTransition = errors.New("illegal request state transition")

	// ErrNoAccount is returned by AcquireAccount before GetOrCreateAccount
	// has run.
	ErrNoAccount = errors.New("no account in store")
)
