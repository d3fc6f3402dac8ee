package catalog

import "testing"

const sampleCatalogJSON = `[
	{"mid": "0001", "name": "Communication start", "category": "session", "direction": "rx", "supported_revisions": [1,6]},
	{"mid": "61", "name": "Last tightening result", "category": "subscription_start", "direction": "rx"}
]`

func TestFromJSONNormalizesAndSorts(t *testing.T) {
	c, err := FromJSON([]byte(sampleCatalogJSON))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if !c.Contains("0061") {
		t.Fatalf("expected normalized mid 0061 to be present")
	}
	def, ok := c.Get("61")
	if !ok {
		t.Fatalf("Get(61) missing")
	}
	if def.MID != "0061" {
		t.Errorf("MID = %q, want 0061", def.MID)
	}
	mids := c.MIDs()
	if mids[0] != "0001" || mids[1] != "0061" {
		t.Errorf("MIDs() not sorted: %v", mids)
	}
}

func TestFromJSONDefaultsRevisions(t *testing.T) {
	c, err := FromJSON([]byte(sampleCatalogJSON))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	def, _ := c.Get("0061")
	if len(def.SupportedRevisions) != 1 || def.SupportedRevisions[0] != 1 {
		t.Errorf("default revisions = %v, want [1]", def.SupportedRevisions)
	}
}

const sampleProfileA = `{"name": "atlas_pf", "description": "Atlas", "supported_mids": ["0001","0002","0061"]}`
const sampleProfileB = `{"name": "cleco", "description": "Cleco", "supported_mids": ["0001","0002"]}`

func TestProfileStoreActiveFallback(t *testing.T) {
	a, err := DecodeProfile([]byte(sampleProfileA))
	if err != nil {
		t.Fatalf("decode a: %v", err)
	}
	b, err := DecodeProfile([]byte(sampleProfileB))
	if err != nil {
		t.Fatalf("decode b: %v", err)
	}
	store, err := NewProfileStore([]*Profile{a, b}, "unknown")
	if err != nil {
		t.Fatalf("NewProfileStore: %v", err)
	}
	if store.ActiveName() != "atlas_pf" {
		t.Errorf("active = %q, want atlas_pf (first in order)", store.ActiveName())
	}
	if !store.Active().Supports("0061") {
		t.Errorf("expected atlas_pf to support 0061")
	}
}

func TestProfileStoreSetActive(t *testing.T) {
	a, _ := DecodeProfile([]byte(sampleProfileA))
	b, _ := DecodeProfile([]byte(sampleProfileB))
	store, _ := NewProfileStore([]*Profile{a, b}, "atlas_pf")
	if err := store.SetActive("cleco"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if store.Active().Supports("0061") {
		t.Errorf("cleco should not support 0061")
	}
	if err := store.SetActive("nope"); err == nil {
		t.Fatalf("expected error switching to unknown profile")
	}
}
