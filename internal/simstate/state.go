// Package simstate owns the simulator's mutable domain state: the
// in-memory fixture data that MID replies and pushes are built from, the
// registry of connected sessions, and the bounded traffic/event logs. All
// mutation goes through a single mutex; reads hand back a deep copy so
// callers can never observe (or corrupt) live state.
package simstate

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/glennswest/openprotocol-sim/internal/catalog"
	"github.com/glennswest/openprotocol-sim/internal/persistence"
	"github.com/glennswest/openprotocol-sim/internal/ring"
	"github.com/glennswest/openprotocol-sim/internal/session"
)

// Config bounds the state store's resource usage and session limits.
type Config struct {
	MaxSessions      int
	KeepaliveTimeout time.Duration
}

// State is the simulator's single source of truth.
type State struct {
	catalog     *catalog.Catalog
	profiles    *catalog.ProfileStore
	persistence *persistence.Store
	cfg         Config

	mu     sync.Mutex
	domain map[string]any

	sessMu   sync.Mutex
	sessions map[string]*session.Session

	traffic *ring.Ring[TrafficEntry]
	events  *ring.Ring[Event]
}

// TrafficEntry is one logged frame, as surfaced over the HTTP API.
type TrafficEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Direction   string    `json:"direction"`
	MID         string    `json:"mid"`
	Revision    int       `json:"revision"`
	Length      int       `json:"length"`
	RawASCII    string    `json:"raw_ascii"`
	DecodedData string    `json:"decoded_data"`
}

// Event is a simulated occurrence (a tightening, an alarm, an I/O
// transition) that may be pushed to subscribed sessions.
type Event struct {
	EventID      string         `json:"event_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Source       string         `json:"source"`
	EventType    string         `json:"event_type"`
	Payload      map[string]any `json:"payload"`
	AffectedMIDs []string       `json:"affected_mids"`
}

const (
	trafficCapacity = 5000
	eventCapacity   = 2000
	resultsCapacity = 1000
)

// New builds a State with fresh initial fixture data, then overlays any
// snapshot found in persistence.
func New(cat *catalog.Catalog, profiles *catalog.ProfileStore, store *persistence.Store, cfg Config) (*State, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10
	}
	s := &State{
		catalog:     cat,
		profiles:    profiles,
		persistence: store,
		cfg:         cfg,
		domain:      initialState(profiles.ActiveName()),
		sessions:    map[string]*session.Session{},
		traffic:     ring.New[TrafficEntry](trafficCapacity),
		events:      ring.New[Event](eventCapacity),
	}

	raw, err := store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("simstate: load persisted state: %w", err)
	}
	if raw != nil {
		var loaded map[string]any
		if err := json.Unmarshal(raw, &loaded); err != nil {
			return nil, fmt.Errorf("simstate: decode persisted state: %w", err)
		}
		s.domain = loaded
	}
	return s, nil
}

func initialState(activeProfile string) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"metadata": map[string]any{"created_at": now, "profile": activeProfile},
		"tool": map[string]any{
			"enabled":           true,
			"primary_tool":      "01",
			"calibration_value": "0.00",
			"paired":            false,
		},
		"job":  map[string]any{"selected": "0001", "running": false, "batch_counter": 0, "batch_size": 1},
		"pset": map[string]any{"selected": "001", "running": false, "batch_counter": 0, "batch_size": 1},
		"vin":  map[string]any{"current": "SIMVIN00000000001", "history": []any{}},
		"results": map[string]any{
			"last_tightening_id": 1,
			"history":            []any{},
		},
		"alarms":   map[string]any{"active": []any{}, "history": []any{}},
		"io":       map[string]any{"relays": map[string]any{}, "inputs": map[string]any{}, "relay_functions": map[string]any{}, "digin_functions": map[string]any{}},
		"selector": map[string]any{"socket": "1", "green": []any{}, "red": []any{}},
		"traces":   map[string]any{"latest": nil},
		"programs": map[string]any{"last_download": nil, "catalog": map[string]any{}},
		"mode": map[string]any{
			"selected": "0001",
			"list":     []any{map[string]any{"id": "0001", "name": "Default"}},
		},
		"user_data":   map[string]any{"records": map[string]any{}},
		"identifiers": map[string]any{"latest": nil, "all": []any{}},
	}
}

// deepCopy round-trips v through JSON, matching the reference
// implementation's json.loads(json.dumps(...)) isolation technique.
func deepCopy(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("simstate: marshal for deep copy: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("simstate: unmarshal for deep copy: %w", err)
	}
	return out, nil
}

// GetDomain returns a deep copy of one domain's current value.
func (s *State) GetDomain(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.domain[name]
	if !ok {
		return nil, fmt.Errorf("simstate: unknown domain %q", name)
	}
	return deepCopy(v)
}

// ListDomains returns a deep copy of the entire state tree.
func (s *State) ListDomains() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.domain)
}

// UpdateDomain replaces domain's value wholesale and persists the new
// snapshot best-effort; persistence failures never fail the mutation
// itself.
func (s *State) UpdateDomain(name string, payload any) (any, error) {
	s.mu.Lock()
	if _, ok := s.domain[name]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("simstate: unknown domain %q", name)
	}
	s.domain[name] = payload
	s.touchMetadataLocked()
	snapshot := s.domain
	s.mu.Unlock()

	s.persistLocked(snapshot)
	return deepCopy(payload)
}

// mutateDomain applies fn to a live (non-deep-copied) domain value under
// the lock, then persists. Used by command side effects that read and
// modify a domain's existing value rather than replacing it wholesale.
func (s *State) mutateDomain(name string, fn func(map[string]any)) error {
	s.mu.Lock()
	v, ok := s.domain[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("simstate: unknown domain %q", name)
	}
	m, ok := v.(map[string]any)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("simstate: domain %q is not an object", name)
	}
	fn(m)
	s.touchMetadataLocked()
	snapshot := s.domain
	s.mu.Unlock()

	s.persistLocked(snapshot)
	return nil
}

// readDomain runs fn against a live domain value under the lock, for
// build-data-for-mid style reads that need the current value without a
// full deep copy.
func (s *State) readDomain(name string, fn func(map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.domain[name].(map[string]any); ok {
		fn(v)
	}
}

func (s *State) touchMetadataLocked() {
	meta, _ := s.domain["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		s.domain["metadata"] = meta
	}
	meta["updated_at"] = time.Now().UTC().Format(time.RFC3339)
}

func (s *State) persistLocked(snapshot map[string]any) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		log.Warnf("Failed to encode state snapshot: %v", err)
		return
	}
	if err := s.persistence.SaveState(raw); err != nil {
		log.Warnf("Failed to persist state snapshot: %v", err)
	}
}

// Reset restores the initial fixture state and clears every session's
// protocol-level progress (subscriptions, sequencing, communication
// status), matching a cold simulator start.
func (s *State) Reset() {
	s.mu.Lock()
	s.domain = initialState(s.profiles.ActiveName())
	snapshot := s.domain
	s.mu.Unlock()
	s.events.Clear()
	s.persistLocked(snapshot)

	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	for _, sess := range s.sessions {
		sess.ClearSubscriptions()
		sess.SetCommunicationStarted(false)
		sess.ResetSequencing()
	}
}

// SetProfile switches the active vendor profile.
func (s *State) SetProfile(name string) error {
	if err := s.profiles.SetActive(name); err != nil {
		return err
	}
	s.mu.Lock()
	meta, _ := s.domain["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		s.domain["metadata"] = meta
	}
	meta["profile"] = name
	s.touchMetadataLocked()
	snapshot := s.domain
	s.mu.Unlock()
	s.persistLocked(snapshot)
	return nil
}

// ProfilePayload renders the active-profile summary the HTTP control plane
// returns for GET and PUT /api/v1/profiles/active.
func (s *State) ProfilePayload() map[string]any {
	active := s.profiles.Active()
	profiles := make([]map[string]any, 0, len(s.profiles.All()))
	for _, p := range s.profiles.All() {
		profiles = append(profiles, map[string]any{
			"name":                 p.Name,
			"display_name":         p.DisplayName,
			"description":          p.Description,
			"supported_mid_count": len(p.SupportedMIDs),
		})
	}
	return map[string]any{
		"active":   s.profiles.ActiveName(),
		"profiles": profiles,
		"active_details": map[string]any{
			"name":               active.Name,
			"description":        active.Description,
			"supported_mids":     active.SupportedMIDs,
			"revision_overrides": active.RevisionOverrides,
			"notes":              active.Notes,
		},
	}
}

// ListCapabilityMatrix reports, for every cataloged MID, whether the
// active profile supports it and which revisions it accepts.
func (s *State) ListCapabilityMatrix() []map[string]any {
	active := s.profiles.Active()
	entries := s.catalog.AsList()
	matrix := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		revs := e.SupportedRevisions
		if override, ok := active.RevisionOverrides[e.MID]; ok {
			revs = override
		}
		matrix = append(matrix, map[string]any{
			"mid":       e.MID,
			"name":      e.Name,
			"category":  e.Category,
			"supported": active.Supports(e.MID),
			"revisions": revs,
		})
	}
	return matrix
}

// Catalog exposes the underlying MID catalog for components that need
// direct lookups (the dispatcher, the HTTP capabilities endpoint).
func (s *State) Catalog() *catalog.Catalog {
	return s.catalog
}

// Profiles exposes the underlying profile store.
func (s *State) Profiles() *catalog.ProfileStore {
	return s.profiles
}
