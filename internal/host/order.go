package host

import (
	"fmt"
	"strings"
)

// OrderByDependencies returns mods sorted so each one follows the mods it
// depends on (dependencies and content pack targets present in the list).
// The sort is stable: unrelated mods keep their input order. Mods caught in
// a dependency loop, or waiting on one, are marked failed and moved to the
// end. Records that already failed are kept at the front.
func OrderByDependencies(mods []*ModMetadata) []*ModMetadata {
	ordered := make([]*ModMetadata, 0, len(mods))
	pending := make([]*ModMetadata, 0, len(mods))
	present := make(map[string]bool)

	for _, meta := range mods {
		if meta.Status() == StatusFailed {
			ordered = append(ordered, meta)
			continue
		}
		pending = append(pending, meta)
		present[strings.ToLower(meta.ID())] = true
	}

	done := make(map[string]bool, len(pending))
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0:0]
		for _, meta := range pending {
			if dependenciesDone(meta, present, done) {
				ordered = append(ordered, meta)
				done[strings.ToLower(meta.ID())] = true
				progressed = true
				continue
			}
			rest = append(rest, meta)
		}
		pending = rest
		if progressed {
			continue
		}

		ids := make([]string, len(pending))
		for i, meta := range pending {
			ids[i] = meta.ID()
		}
		for _, meta := range pending {
			meta.SetStatus(StatusFailed, FailMissingDependencies,
				fmt.Sprintf("%v among %s", ErrCyclicDependency, strings.Join(ids, ", ")))
			ordered = append(ordered, meta)
		}
		break
	}
	return ordered
}

func dependenciesDone(meta *ModMetadata, present, done map[string]bool) bool {
	for _, id := range dependencyIDs(meta) {
		key := strings.ToLower(id)
		if key == strings.ToLower(meta.ID()) {
			continue
		}
		if present[key] && !done[key] {
			return false
		}
	}
	return true
}

// dependencyIDs lists the unique ids a mod must load after.
func dependencyIDs(meta *ModMetadata) []string {
	m := meta.Manifest()
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.Dependencies)+1)
	if m.ContentPackFor != nil {
		ids = append(ids, m.ContentPackFor.UniqueID)
	}
	for _, dep := range m.Dependencies {
		ids = append(ids, dep.UniqueID)
	}
	return ids
}
