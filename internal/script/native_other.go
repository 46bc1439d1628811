//go:build !darwin && !freebsd && !linux && !windows

package script

import (
	"fmt"
	"runtime"
)

type unsupportedLoader struct{}

// DefaultNativeLoader returns a loader that always fails on this platform.
func DefaultNativeLoader() NativeLoader {
	return unsupportedLoader{}
}

func (unsupportedLoader) Open(string) (uintptr, error) {
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
}

func (unsupportedLoader) Symbol(uintptr, string) (uintptr, error) {
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
}
