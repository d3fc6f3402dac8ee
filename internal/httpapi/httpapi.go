// Package httpapi exposes the simulator's control plane: profile
// switching, live session/traffic inspection, direct state edits, event
// injection, and scenario playback, all as a small JSON API over
// gorilla/mux.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/glennswest/openprotocol-sim/internal/publisher"
	"github.com/glennswest/openprotocol-sim/internal/scenario"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

// Ports is the role->TCP-port map the health endpoint reports, so a
// control-plane client can discover where to dial without re-reading the
// simulator's own config.
type Ports struct {
	Classic int `json:"classic"`
	Actor   int `json:"actor"`
	Viewer  int `json:"viewer"`
	API     int `json:"api"`
}

// Server wires the HTTP control plane to the shared simulator state.
type Server struct {
	state      *simstate.State
	publisher  *publisher.Publisher
	scenarios  *scenario.Store
	version    string
	ports      Ports
	router     *mux.Router
	httpServer *http.Server
}

// New builds a Server. scenarios may be nil if no scenario document was
// loaded, in which case /api/v1/scenarios reports an empty list and
// /api/v1/scenarios/run answers 404.
func New(state *simstate.State, pub *publisher.Publisher, scenarios *scenario.Store, version string, ports Ports) *Server {
	s := &Server{
		state:     state,
		publisher: pub,
		scenarios: scenarios,
		version:   version,
		ports:     ports,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/profiles/active", s.handleActiveProfile).Methods("GET")
	api.HandleFunc("/profiles/active", s.handleSwitchProfile).Methods("PUT")

	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/traffic", s.handleListTraffic).Methods("GET")

	api.HandleFunc("/state", s.handleListDomains).Methods("GET")
	api.HandleFunc("/state/{domain}", s.handleGetDomain).Methods("GET")
	api.HandleFunc("/state/{domain}", s.handlePutDomain).Methods("PUT")

	api.HandleFunc("/events/{event_name}", s.handlePublishEvent).Methods("POST")

	api.HandleFunc("/scenarios", s.handleListScenarios).Methods("GET")
	api.HandleFunc("/scenarios/run", s.handleRunScenario).Methods("POST")

	api.HandleFunc("/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/capabilities", s.handleCapabilities).Methods("GET")
}

func (s *Server) Handler() http.Handler { return s.router }

// Run starts the HTTP server on addr and blocks until it exits.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	log.Infof("HTTP control plane listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server, if it was started.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"active_profile": s.state.Profiles().ActiveName(),
		"mid_count":      s.state.Catalog().Len(),
		"session_count":  len(s.state.Sessions()),
		"ports":          s.ports,
	})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Profiles().All())
}

func (s *Server) handleActiveProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.ProfilePayload())
}

type profileSwitchRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSwitchProfile(w http.ResponseWriter, r *http.Request) {
	var req profileSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.state.SetProfile(req.Name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.state.ProfilePayload())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.SessionSnapshots())
}

func (s *Server) handleListTraffic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.state.ListTraffic(limit, q.Get("mid"), q.Get("session_id")))
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	value, err := s.state.ListDomains()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": value})
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	value, err := s.state.GetDomain(domain)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handlePutDomain(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, err := s.state.UpdateDomain(domain, payload)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	eventName := mux.Vars(r)["event_name"]
	var payload map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	result := s.publisher.Publish(eventName, payload)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		writeJSON(w, http.StatusOK, map[string]any{"scenarios": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": s.scenarios.Names()})
}

type scenarioRunRequest struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.scenarios == nil {
		writeError(w, http.StatusNotFound, "no scenarios loaded")
		return
	}
	steps, ok := s.scenarios.Steps(req.Name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scenario: "+req.Name)
		return
	}

	results := make([]publisher.Result, 0, len(steps))
	for _, step := range steps {
		if step.DelaySec > 0 {
			time.Sleep(time.Duration(step.DelaySec * float64(time.Second)))
		}
		payload := make(map[string]any, len(step.Payload)+len(req.Payload))
		for k, v := range step.Payload {
			payload[k] = v
		}
		for k, v := range req.Payload {
			payload[k] = v
		}
		results = append(results, s.publisher.Publish(step.Event, payload))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": req.Name, "steps_executed": len(steps), "results": results})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.state.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"mids": s.state.ListCapabilityMatrix()})
}
