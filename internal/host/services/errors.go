package services

import "errors"

// Service errors.
var (
	// ErrUnknownEvent is returned when subscribing to an event the host does not raise.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrCommandExists is returned when a console command name is already taken.
	ErrCommandExists = errors.New("command already registered")

	// ErrInvalidCommand is returned for empty command names or nil callbacks.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrMemberNotFound is returned when a reflected field or method does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrNotAddressable is returned when a field cannot be accessed through the given value.
	ErrNotAddressable = errors.New("value is not addressable")

	// ErrUnsupportedAsset is returned when an asset's file type cannot be parsed.
	ErrUnsupportedAsset = errors.New("unsupported asset type")

	// ErrAssetNotFound is returned when an asset file does not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrStoreClosed is returned when using a closed global data store.
	ErrStoreClosed = errors.New("global data store is closed")
)
