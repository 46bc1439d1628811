//go:build darwin || freebsd || linux

package script

import "github.com/ebitengine/purego"

type dlLoader struct{}

// DefaultNativeLoader returns the dlopen based loader.
func DefaultNativeLoader() NativeLoader {
	return dlLoader{}
}

func (dlLoader) Open(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func (dlLoader) Symbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}
