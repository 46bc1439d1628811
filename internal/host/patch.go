package host

import (
	"fmt"
	"strings"
	"sync"
)

// LoadOutcome is the result contract of the host's mod load routine.
type LoadOutcome struct {
	OK     bool
	Reason FailReason
	Error  string
}

// Loaded is the outcome of a successful load.
func Loaded() LoadOutcome {
	return LoadOutcome{OK: true}
}

// Failed builds a failure outcome.
func Failed(reason FailReason, format string, args ...any) LoadOutcome {
	return LoadOutcome{Reason: reason, Error: fmt.Sprintf(format, args...)}
}

// EntryResolver runs before the host picks the entry type of an assembly.
// Returning handled=true makes mod (or err) the result and skips the
// host's single-entry-type check.
type EntryResolver func(meta *ModMetadata, asm *Assembly) (mod Mod, handled bool, err error)

// LoadInterceptor runs before the host loads a mod. Returning handled=true
// makes outcome the result and skips the host's own routine.
type LoadInterceptor func(meta *ModMetadata) (outcome LoadOutcome, handled bool)

type patch[T any] struct {
	owner string
	fn    T
}

// patchSet is an ordered list of prefix patches keyed by owner.
type patchSet[T any] struct {
	mu      sync.RWMutex
	patches []patch[T]
}

func (s *patchSet[T]) add(owner string, fn T) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("patch owner is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patches {
		if strings.EqualFold(p.owner, owner) {
			return fmt.Errorf("%s: %w", owner, ErrPatchExists)
		}
	}
	s.patches = append(s.patches, patch[T]{owner: owner, fn: fn})
	return nil
}

func (s *patchSet[T]) snapshot() []patch[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]patch[T], len(s.patches))
	copy(out, s.patches)
	return out
}

func (s *patchSet[T]) owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.patches))
	for i, p := range s.patches {
		out[i] = p.owner
	}
	return out
}

// PatchEntryResolution installs a prefix on the entry type resolution routine.
func (c *Core) PatchEntryResolution(owner string, fn EntryResolver) error {
	if fn == nil {
		return fmt.Errorf("entry resolver is nil")
	}
	return c.entryPatches.add(owner, fn)
}

// PatchModLoad installs a prefix on the mod load routine.
func (c *Core) PatchModLoad(owner string, fn LoadInterceptor) error {
	if fn == nil {
		return fmt.Errorf("load interceptor is nil")
	}
	return c.loadPatches.add(owner, fn)
}

// Patches lists the owners of installed patches.
func (c *Core) Patches() (entryResolution, modLoad []string) {
	return c.entryPatches.owners(), c.loadPatches.owners()
}

// tryLoadModEntry resolves the entry of a code mod, running prefixes first.
func (c *Core) tryLoadModEntry(meta *ModMetadata, asm *Assembly) (Mod, error) {
	for _, p := range c.entryPatches.snapshot() {
		mod, handled, err := c.runEntryPatch(p, meta, asm)
		if handled {
			if err == nil && mod == nil {
				err = fmt.Errorf("entry resolver %s returned no entry", p.owner)
			}
			return mod, err
		}
	}
	return resolveEntryType(asm)
}

func (c *Core) runEntryPatch(p patch[EntryResolver], meta *ModMetadata, asm *Assembly) (mod Mod, handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			mod, handled, err = nil, true, fmt.Errorf("entry resolver %s panicked: %v", p.owner, r)
		}
	}()
	return p.fn(meta, asm)
}

// tryLoadMod loads one mod, running prefixes first.
func (c *Core) tryLoadMod(meta *ModMetadata) LoadOutcome {
	for _, p := range c.loadPatches.snapshot() {
		if outcome, handled := c.runLoadPatch(p, meta); handled {
			return outcome
		}
	}
	return c.loadMod(meta)
}

func (c *Core) runLoadPatch(p patch[LoadInterceptor], meta *ModMetadata) (outcome LoadOutcome, handled bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("patch", p.owner).Str("mod", meta.DisplayName()).
				Interface("panic", r).Msg("Load patch panicked")
			outcome, handled = Failed(FailLoadFailed, "load patch %s panicked: %v", p.owner, r), true
		}
	}()
	return p.fn(meta)
}
