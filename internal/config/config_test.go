package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClassicPort != 4545 || cfg.SimProfile != "atlas_pf" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	if err := os.WriteFile(path, []byte("sim_profile: cleco\nclassic_port: 9000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SimProfile != "cleco" || cfg.ClassicPort != 9000 {
		t.Fatalf("file layer not applied: %+v", cfg)
	}
	if cfg.ActorPort != 4546 {
		t.Fatalf("unset fields should keep defaults: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	os.WriteFile(path, []byte("classic_port: 9000\n"), 0o644)

	t.Setenv("SIM_CLASSIC_PORT", "7000")
	t.Setenv("SIM_PERSIST", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClassicPort != 7000 {
		t.Fatalf("env should win over file, got %d", cfg.ClassicPort)
	}
	if !cfg.SimPersist {
		t.Fatalf("SIM_PERSIST=true should be parsed as true")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/sim.yaml")
	if err != nil {
		t.Fatalf("Load should tolerate a missing file: %v", err)
	}
	if cfg.APIPort != 8000 {
		t.Fatalf("expected default APIPort, got %d", cfg.APIPort)
	}
}
