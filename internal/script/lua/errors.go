package lua

import (
	"errors"
	"fmt"

	"github.com/sinz/selene/internal/script"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = fmt.Errorf("lua: %w", script.ErrEngineClosed)

	// ErrNotAssignable is returned when a Lua value cannot be converted to a Go type.
	ErrNotAssignable = errors.New("lua value not assignable")
)
