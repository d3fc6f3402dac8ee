// Command openprotocol-sim runs the Open Protocol torque-tool simulator:
// three role-segregated TCP listeners speaking the wire protocol, and an
// HTTP control plane for profile switching, state inspection, and event
// injection.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/glennswest/openprotocol-sim/internal/catalog"
	"github.com/glennswest/openprotocol-sim/internal/config"
	"github.com/glennswest/openprotocol-sim/internal/data"
	"github.com/glennswest/openprotocol-sim/internal/dispatcher"
	"github.com/glennswest/openprotocol-sim/internal/httpapi"
	"github.com/glennswest/openprotocol-sim/internal/persistence"
	"github.com/glennswest/openprotocol-sim/internal/publisher"
	"github.com/glennswest/openprotocol-sim/internal/scenario"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
	"github.com/glennswest/openprotocol-sim/internal/tcpserver"
)

// Version is bumped by hand: major for wire-breaking changes, minor for
// new MIDs/features, patch for bug fixes.
var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to an optional YAML config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Infof("Starting Open Protocol simulator v%s", Version)
	log.Infof("  profile: %s", cfg.SimProfile)
	log.Infof("  ports: classic=%d actor=%d viewer=%d api=%d", cfg.ClassicPort, cfg.ActorPort, cfg.ViewerPort, cfg.APIPort)

	src := data.NewSource(cfg.SimDataDir)

	catalogJSON, err := src.Catalog()
	if err != nil {
		log.Fatalf("Failed to load MID catalog: %v", err)
	}
	cat, err := catalog.FromJSON(catalogJSON)
	if err != nil {
		log.Fatalf("Failed to parse MID catalog: %v", err)
	}
	log.Infof("Loaded %d MID definitions", cat.Len())

	profileDocs, err := src.Profiles()
	if err != nil {
		log.Fatalf("Failed to load profiles: %v", err)
	}
	profiles := make([]*catalog.Profile, 0, len(profileDocs))
	for _, doc := range profileDocs {
		p, err := catalog.DecodeProfile(doc)
		if err != nil {
			log.Fatalf("Failed to parse profile: %v", err)
		}
		profiles = append(profiles, p)
	}
	profileStore, err := catalog.NewProfileStore(profiles, cfg.SimProfile)
	if err != nil {
		log.Fatalf("Failed to build profile store: %v", err)
	}
	log.Infof("Active profile: %s", profileStore.ActiveName())

	scenarioJSON, err := src.Scenarios()
	var scenarios *scenario.Store
	if err != nil {
		log.Warnf("Failed to load scenarios: %v (scenario playback disabled)", err)
	} else {
		scenarios, err = scenario.Load(scenarioJSON)
		if err != nil {
			log.Warnf("Failed to parse scenarios: %v (scenario playback disabled)", err)
		}
	}

	var store *persistence.Store
	if cfg.SimPersist {
		store, err = persistence.Open(cfg.SimDBPath)
		if err != nil {
			log.Warnf("Failed to open persistence at %s: %v (continuing in-memory only)", cfg.SimDBPath, err)
			store = persistence.NewDisabled()
		}
	} else {
		store = persistence.NewDisabled()
	}
	defer store.Close()

	stateCfg := simstate.Config{
		MaxSessions:      cfg.SimMaxSessions,
		KeepaliveTimeout: time.Duration(cfg.SimKeepaliveTimeoutSec) * time.Second,
	}
	state, err := simstate.New(cat, profileStore, store, stateCfg)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}

	disp := dispatcher.New(cat, profileStore, state)
	pub := publisher.New(state)

	tcp := tcpserver.New(tcpserver.Config{
		Host:             cfg.Host,
		ClassicPort:      cfg.ClassicPort,
		ActorPort:        cfg.ActorPort,
		ViewerPort:       cfg.ViewerPort,
		KeepaliveTimeout: time.Duration(cfg.SimKeepaliveTimeoutSec) * time.Second,
	}, state, disp)

	if err := tcp.Start(); err != nil {
		log.Fatalf("Failed to start TCP listeners: %v", err)
	}
	defer tcp.Stop()

	api := httpapi.New(state, pub, scenarios, Version, httpapi.Ports{
		Classic: cfg.ClassicPort,
		Actor:   cfg.ActorPort,
		Viewer:  cfg.ViewerPort,
		API:     cfg.APIPort,
	})

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
		tcp.Stop()
		api.Shutdown()
	}()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	log.Infof("HTTP control plane listening on %s", addr)
	if err := api.Run(addr); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}
