//go:build windows

package script

import "golang.org/x/sys/windows"

type dllLoader struct{}

// DefaultNativeLoader returns the LoadLibrary based loader.
func DefaultNativeLoader() NativeLoader {
	return dllLoader{}
}

func (dllLoader) Open(path string) (uintptr, error) {
	h, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	return uintptr(h), err
}

func (dllLoader) Symbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}
