package bridge

import "errors"

// Bridge errors.
var (
	// ErrHostAPIMismatch is returned when a host internal the bridge relies on
	// is missing or has an unexpected type.
	ErrHostAPIMismatch = errors.New("host API mismatch")

	// ErrAlreadyInstalled is returned by a second Install.
	ErrAlreadyInstalled = errors.New("bridge already installed")

	// ErrNotInstalled is returned when the bridge is used before Install.
	ErrNotInstalled = errors.New("bridge not installed")

	// ErrDisabled is returned for scripted mods once script support failed
	// to initialize.
	ErrDisabled = errors.New("script support is disabled")
)
