package host

import "errors"

// Host errors.
var (
	// ErrDuplicateMod is returned when a unique id is already registered.
	ErrDuplicateMod = errors.New("a mod with this unique id is already registered")

	// ErrPatchExists is returned when an owner installs the same patch twice.
	ErrPatchExists = errors.New("patch already installed by this owner")

	// ErrAssemblyNotFound is returned when a code mod names an assembly the
	// catalog does not know.
	ErrAssemblyNotFound = errors.New("entry assembly not found")

	// ErrNoEntryType is returned when an assembly has no mod entry type.
	ErrNoEntryType = errors.New("assembly has no mod entry type")

	// ErrMultipleEntryTypes is returned when an assembly has more than one
	// mod entry type.
	ErrMultipleEntryTypes = errors.New("assembly has more than one mod entry type")

	// ErrCyclicDependency is returned when mods depend on each other in a loop.
	ErrCyclicDependency = errors.New("cyclic mod dependency detected")

	// ErrAlreadyLoaded is returned when LoadMods runs a second time.
	ErrAlreadyLoaded = errors.New("mods are already loaded")
)
