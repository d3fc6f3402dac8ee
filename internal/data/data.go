// Package data embeds the simulator's default seed data: the MID catalog,
// the vendor profiles, and the canned demo scenarios. SIM_DATA_DIR lets an
// operator point at an on-disk copy instead, for local experimentation
// without rebuilding the binary.
package data

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed catalog.json
var embeddedCatalog []byte

//go:embed profiles/*.json
var embeddedProfilesFS embed.FS

//go:embed scenarios.json
var embeddedScenarios []byte

// Source loads seed data either from the embedded defaults or from an
// override directory (set via SIM_DATA_DIR), mirroring the on-disk layout
// of catalog.json / profiles/*.json / scenarios.json.
type Source struct {
	dir string // empty means use the embedded copies
}

// NewSource returns a Source. If dir is non-empty, files are read from
// disk at dir/catalog.json, dir/profiles/*.json, dir/scenarios.json.
func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// Catalog returns the raw catalog.json bytes.
func (s *Source) Catalog() ([]byte, error) {
	if s.dir == "" {
		return embeddedCatalog, nil
	}
	return os.ReadFile(filepath.Join(s.dir, "catalog.json"))
}

// Scenarios returns the raw scenarios.json bytes.
func (s *Source) Scenarios() ([]byte, error) {
	if s.dir == "" {
		return embeddedScenarios, nil
	}
	return os.ReadFile(filepath.Join(s.dir, "scenarios.json"))
}

// Profiles returns the raw bytes of every profiles/*.json document,
// sorted by filename for deterministic load order.
func (s *Source) Profiles() ([][]byte, error) {
	if s.dir == "" {
		entries, err := embeddedProfilesFS.ReadDir("profiles")
		if err != nil {
			return nil, fmt.Errorf("data: read embedded profiles: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		out := make([][]byte, 0, len(names))
		for _, name := range names {
			raw, err := embeddedProfilesFS.ReadFile("profiles/" + name)
			if err != nil {
				return nil, fmt.Errorf("data: read embedded profile %s: %w", name, err)
			}
			out = append(out, raw)
		}
		return out, nil
	}

	dir := filepath.Join(s.dir, "profiles")
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("data: glob profiles: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("data: no profiles found in %s", dir)
	}
	out := make([][]byte, 0, len(matches))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("data: read profile %s: %w", path, err)
		}
		out = append(out, raw)
	}
	return out, nil
}
