package script

import (
	"fmt"
	"os"
	"path/filepath"
)

// NativeCheckSymbol must be exported by the native support library.
const NativeCheckSymbol = "lua_version"

// NativeLoader opens shared libraries.
type NativeLoader interface {
	Open(path string) (uintptr, error)
	Symbol(handle uintptr, name string) (uintptr, error)
}

// NativeLibrary is a loaded native support library.
type NativeLibrary struct {
	Path   string
	RID    string
	Handle uintptr
}

// RID returns the runtime identifier used in the runtimes folder.
func RID(goos, goarch string) (string, error) {
	var osPart, archPart string
	switch goos {
	case "linux":
		osPart = "linux"
	case "darwin":
		osPart = "osx"
	case "windows":
		osPart = "win"
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	switch goarch {
	case "amd64":
		archPart = "x64"
	case "arm64":
		archPart = "arm64"
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return osPart + "-" + archPart, nil
}

// NativeLibraryName returns the file name of the native library on goos.
func NativeLibraryName(goos string) string {
	switch goos {
	case "windows":
		return "lua54.dll"
	case "darwin":
		return "liblua54.dylib"
	default:
		return "liblua54.so"
	}
}

// NativeLibraryPath returns runtimes/<rid>/native/<lib> under baseDir.
func NativeLibraryPath(baseDir, goos, goarch string) (string, error) {
	rid, err := RID(goos, goarch)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "runtimes", rid, "native", NativeLibraryName(goos)), nil
}

// openNativeLibrary is loadNativeLibrary with a loader panic reported as an error.
func openNativeLibrary(loader NativeLoader, baseDir, goos, goarch string) (lib *NativeLibrary, err error) {
	defer func() {
		if r := recover(); r != nil {
			lib, err = nil, fmt.Errorf("native loader panicked: %v", r)
		}
	}()
	return loadNativeLibrary(loader, baseDir, goos, goarch)
}

func loadNativeLibrary(loader NativeLoader, baseDir, goos, goarch string) (*NativeLibrary, error) {
	path, err := NativeLibraryPath(baseDir, goos, goarch)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("native library %s: %w", path, err)
	}
	handle, err := loader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open native library %s: %w", path, err)
	}
	if _, err := loader.Symbol(handle, NativeCheckSymbol); err != nil {
		return nil, fmt.Errorf("native library %s does not export %s: %w", path, NativeCheckSymbol, err)
	}

	rid, _ := RID(goos, goarch)
	return &NativeLibrary{Path: path, RID: rid, Handle: handle}, nil
}
