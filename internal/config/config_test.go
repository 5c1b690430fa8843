package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Pipeline.LookaheadM != 1000 {
		t.Errorf("lookahead = %v, want 1000", cfg.Pipeline.LookaheadM)
	}
	if cfg.Pipeline.MergeDistanceM != 50 {
		t.Errorf("merge distance = %v, want 50", cfg.Pipeline.MergeDistanceM)
	}
	if cfg.Source.Mode != "sim" {
		t.Errorf("source mode = %q, want sim", cfg.Source.Mode)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codriver.yml")
	doc := `
pipeline:
  lookahead_m: 1500
caller:
  min_lead_m: 120
source:
  mode: trace
  trace_path: /data/stage.vbo
  speed_multiplier: 2
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.LookaheadM != 1500 {
		t.Errorf("lookahead = %v, want 1500 from yaml", cfg.Pipeline.LookaheadM)
	}
	if cfg.Caller.MinLeadM != 120 {
		t.Errorf("min lead = %v, want 120 from yaml", cfg.Caller.MinLeadM)
	}
	if cfg.Source.Mode != "trace" || cfg.Source.TracePath != "/data/stage.vbo" {
		t.Errorf("source = %+v, want trace mode", cfg.Source)
	}
	// Untouched fields keep defaults.
	if cfg.Pipeline.CornerMinRadiusM != 300 {
		t.Errorf("corner min radius = %v, want default 300", cfg.Pipeline.CornerMinRadiusM)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Caller.MinLeadM != 100 {
		t.Errorf("min lead = %v, want default 100", cfg.Caller.MinLeadM)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	doc := "source:\n  mode: teleport\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid source mode accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODRIVER_PBF", "/maps/wales.osm.pbf")
	t.Setenv("CODRIVER_NATS_URL", "nats://10.0.0.5:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Map.PBFPath != "/maps/wales.osm.pbf" {
		t.Errorf("pbf path = %q, want env value", cfg.Map.PBFPath)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://10.0.0.5:4222" {
		t.Errorf("nats = %+v, want enabled with env url", cfg.NATS)
	}
}
