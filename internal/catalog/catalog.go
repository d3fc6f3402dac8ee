// Package catalog holds the static MID definitions and vendor profiles
// that drive what the simulator accepts and how it behaves under a given
// vendor's supported-MID list.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/glennswest/openprotocol-sim/internal/protocol"
)

// MidDefinition describes one Open Protocol MID: its category, which
// revisions it supports, and how the simulator should react to it.
type MidDefinition struct {
	MID                 string         `json:"mid"`
	Name                string         `json:"name"`
	Category            string         `json:"category"`
	Direction           string         `json:"direction"`
	SupportedRevisions  []int          `json:"supported_revisions"`
	PayloadSchema       map[string]any `json:"payload_schema"`
	AckStrategy         string         `json:"ack_strategy"`
	ErrorRules          []string       `json:"error_rules"`
	ProfileOverrides    map[string]any `json:"profile_overrides"`
}

// validCategories is the category enum from spec.md §3's data model. The
// dispatcher's per-category rules (unsupported-profile error selection,
// subscription/command routing) only make sense over this exact set.
var validCategories = map[string]bool{
	"session":            true,
	"request":            true,
	"reply":              true,
	"command":            true,
	"subscription_start": true,
	"subscription_stop":  true,
	"ack":                true,
	"event_or_data":      true,
}

// Catalog is an immutable, MID-keyed lookup table.
type Catalog struct {
	entries map[string]MidDefinition
}

// FromJSON builds a Catalog from the catalog.json document format: a flat
// JSON array of MID definitions.
func FromJSON(raw []byte) (*Catalog, error) {
	var items []MidDefinition
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	entries := make(map[string]MidDefinition, len(items))
	for _, item := range items {
		if !validCategories[item.Category] {
			return nil, fmt.Errorf("catalog: mid %s: unknown category %q", item.MID, item.Category)
		}
		if len(item.SupportedRevisions) == 0 {
			item.SupportedRevisions = []int{1}
		}
		item.MID = protocol.NormalizeMID(item.MID)
		entries[item.MID] = item
	}
	return &Catalog{entries: entries}, nil
}

// Get returns the definition for mid, normalizing it to 4 digits first.
func (c *Catalog) Get(mid string) (MidDefinition, bool) {
	def, ok := c.entries[protocol.NormalizeMID(mid)]
	return def, ok
}

// Contains reports whether mid has a definition.
func (c *Catalog) Contains(mid string) bool {
	_, ok := c.entries[protocol.NormalizeMID(mid)]
	return ok
}

// MIDs returns every known MID, sorted ascending.
func (c *Catalog) MIDs() []string {
	out := make([]string, 0, len(c.entries))
	for mid := range c.entries {
		out = append(out, mid)
	}
	sort.Strings(out)
	return out
}

// AsList returns every definition, ordered by MID.
func (c *Catalog) AsList() []MidDefinition {
	mids := c.MIDs()
	out := make([]MidDefinition, 0, len(mids))
	for _, mid := range mids {
		out = append(out, c.entries[mid])
	}
	return out
}

// Len returns the number of known MIDs.
func (c *Catalog) Len() int {
	return len(c.entries)
}
