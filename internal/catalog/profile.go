package catalog

import (
	"encoding/json"
	"fmt"
)

// Profile is one vendor personality: the subset of MIDs it speaks, any
// per-MID revision overrides, and free-form notes surfaced over the API.
type Profile struct {
	Name               string         `json:"name"`
	DisplayName        string         `json:"display_name"`
	Description        string         `json:"description"`
	SupportedMIDs      []string       `json:"supported_mids"`
	RevisionOverrides  map[string][]int `json:"revision_overrides"`
	Notes              map[string]any `json:"notes"`

	supportedSet map[string]bool
}

func (p *Profile) index() {
	p.supportedSet = make(map[string]bool, len(p.SupportedMIDs))
	for _, mid := range p.SupportedMIDs {
		p.supportedSet[mid] = true
	}
}

// Supports reports whether mid is in this profile's supported-MID list.
func (p *Profile) Supports(mid string) bool {
	return p.supportedSet[mid]
}

// ProfileStore holds every loaded profile plus which one is active.
type ProfileStore struct {
	profiles map[string]*Profile
	order    []string
	active   string
}

// NewProfileStore builds a store from already-decoded profiles. If active
// is unknown, the first profile (in the order given) becomes active.
func NewProfileStore(profiles []*Profile, active string) (*ProfileStore, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("catalog: no profiles given")
	}
	store := &ProfileStore{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		p.index()
		store.profiles[p.Name] = p
		store.order = append(store.order, p.Name)
	}
	if _, ok := store.profiles[active]; !ok {
		active = store.order[0]
	}
	store.active = active
	return store, nil
}

// DecodeProfile parses one profile.json document.
func DecodeProfile(raw []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("catalog: decode profile: %w", err)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	if p.RevisionOverrides == nil {
		p.RevisionOverrides = map[string][]int{}
	}
	if p.Notes == nil {
		p.Notes = map[string]any{}
	}
	return &p, nil
}

// Active returns the currently active profile.
func (s *ProfileStore) Active() *Profile {
	return s.profiles[s.active]
}

// ActiveName returns the currently active profile's name.
func (s *ProfileStore) ActiveName() string {
	return s.active
}

// SetActive switches the active profile, erroring if name is unknown.
func (s *ProfileStore) SetActive(name string) error {
	if _, ok := s.profiles[name]; !ok {
		return fmt.Errorf("catalog: unknown profile %q", name)
	}
	s.active = name
	return nil
}

// Names returns every profile name in load order.
func (s *ProfileStore) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns every profile in load order.
func (s *ProfileStore) All() []*Profile {
	out := make([]*Profile, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.profiles[name])
	}
	return out
}

// Get returns the named profile, or nil if unknown.
func (s *ProfileStore) Get(name string) *Profile {
	return s.profiles[name]
}
