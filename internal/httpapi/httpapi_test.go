package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glennswest/openprotocol-sim/internal/catalog"
	"github.com/glennswest/openprotocol-sim/internal/persistence"
	"github.com/glennswest/openprotocol-sim/internal/publisher"
	"github.com/glennswest/openprotocol-sim/internal/scenario"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cat, err := catalog.FromJSON([]byte(`[
		{"mid":"0061","name":"tightening result","category":"event_or_data","direction":"tx"}
	]`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	atlas, _ := catalog.DecodeProfile([]byte(`{"name":"atlas_pf","supported_mids":["0061"]}`))
	cleco, _ := catalog.DecodeProfile([]byte(`{"name":"cleco","supported_mids":["0061"]}`))
	store, err := catalog.NewProfileStore([]*catalog.Profile{atlas, cleco}, "atlas_pf")
	if err != nil {
		t.Fatalf("NewProfileStore: %v", err)
	}
	state, err := simstate.New(cat, store, persistence.NewDisabled(), simstate.Config{MaxSessions: 5})
	if err != nil {
		t.Fatalf("simstate.New: %v", err)
	}
	pub := publisher.New(state)
	scenarios, err := scenario.Load([]byte(`{"scenarios":[{"name":"demo","steps":[{"event":"tightening","payload":{"ok":true}}]}]}`))
	if err != nil {
		t.Fatalf("scenario.Load: %v", err)
	}
	return New(state, pub, scenarios, "test-version", Ports{Classic: 4545, Actor: 4546, Viewer: 4547, API: 8000})
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProfileSwitchAndActive(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "PUT", "/api/v1/profiles/active", profileSwitchRequest{Name: "cleco"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/api/v1/profiles/active", nil)
	var payload map[string]any
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["active"] != "cleco" {
		t.Fatalf("expected active profile cleco, got %+v", payload)
	}
}

func TestProfileSwitchUnknownIs404(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "PUT", "/api/v1/profiles/active", profileSwitchRequest{Name: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStateDomainRoundTrip(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "GET", "/api/v1/state/tool", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/api/v1/state/not_a_domain", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown domain, got %d", rec.Code)
	}
}

func TestPublishEventAndScenarioRun(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "POST", "/api/v1/events/tightening", map[string]any{"ok": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "POST", "/api/v1/scenarios/run", scenarioRunRequest{Name: "demo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "POST", "/api/v1/scenarios/run", scenarioRunRequest{Name: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown scenario, got %d", rec.Code)
	}
}

func TestResetAndCapabilities(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "POST", "/api/v1/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, "GET", "/api/v1/capabilities", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
