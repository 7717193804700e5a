// Package version provides semver-based ordering of game patch strings
package version

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// LatestKeyword may be used in place of a patch to mean "highest known patch".
const LatestKeyword = "latest"

// OpParsePatch names the operation in ErrVersionParseFailed.
const OpParsePatch = "parse_patch"

// Custom error types for better error handling and comparison
var (
	ErrNoVersionsProvided = errors.New("no versions provided")
)

// ErrVersionParseFailed represents a version parsing error
type ErrVersionParseFailed struct {
	Version string
	Op      string
	Cause   error
}

func (e ErrVersionParseFailed) Error() string {
	return fmt.Sprintf("failed to parse version %s in operation %s: %v", e.Version, e.Op, e.Cause)
}

func (e ErrVersionParseFailed) Unwrap() error {
	return e.Cause
}

func (e ErrVersionParseFailed) Is(target error) bool {
	var parseErr ErrVersionParseFailed
	return errors.As(target, &parseErr)
}

// Sort returns the patches in ascending order. Patches that are not valid
// versions keep their relative order and sort after all valid ones.
func Sort(patches []string) []string {
	type entry struct {
		raw    string
		parsed *semver.Version
	}

	entries := make([]entry, 0, len(patches))
	for _, p := range patches {
		sv, _ := semver.NewVersion(p) // nil when p is not a version
		entries = append(entries, entry{raw: p, parsed: sv})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].parsed, entries[j].parsed
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.LessThan(b)
		}
	})

	sorted := make([]string, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, e.raw)
	}
	return sorted
}

// Latest returns the highest valid patch.
func Latest(patches []string) (string, error) {
	if len(patches) == 0 {
		return "", ErrNoVersionsProvided
	}

	var (
		latest    string
		latestVer *semver.Version
	)
	for _, p := range patches {
		sv, err := semver.NewVersion(p)
		if err != nil {
			continue
		}
		if latestVer == nil || sv.GreaterThan(latestVer) {
			latest, latestVer = p, sv
		}
	}

	if latestVer == nil {
		return "", ErrVersionParseFailed{
			Version: patches[0],
			Op:      OpParsePatch,
			Cause:   fmt.Errorf("none of %d patches is a valid version", len(patches)),
		}
	}
	return latest, nil
}

// ResolveLatest replaces every LatestKeyword in requested with the highest
// patch from available. Duplicates produced by the substitution are dropped.
func ResolveLatest(requested, available []string) ([]string, error) {
	resolved := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))

	for _, p := range requested {
		if p == LatestKeyword {
			latest, err := Latest(available)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %q: %w", LatestKeyword, err)
			}
			p = latest
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		resolved = append(resolved, p)
	}

	return resolved, nil
}
