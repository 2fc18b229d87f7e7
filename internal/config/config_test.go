package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRiskWeightsSumToOne(t *testing.T) {
	cfg := Default()
	if err := validate(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected default driver sqlite, got %s", cfg.Database.Driver)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masfro.toml")
	if err := os.WriteFile(path, []byte("totally_unknown_key = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown TOML key")
	}
}

func TestLoadRejectsBadRiskWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masfro.toml")
	body := "[risk_weights]\nflood_depth = 0.9\ncrowdsourced = 0.9\nhistorical = 0.9\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for risk_weights not summing to 1")
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masfro.toml")
	body := "[llm]\nprovider = \"gemini\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MASFRO_LLM_PROVIDER", "openaicompat")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "openaicompat" {
		t.Fatalf("expected env override to win, got %s", cfg.LLM.Provider)
	}
}
