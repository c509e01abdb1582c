package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned by the local store when the passphrase cannot
	// open a sealed profile.
	ErrLocked = errors.New("profile cannot be decrypted with this passphrase")
)
