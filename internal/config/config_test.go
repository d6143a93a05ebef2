package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"SPINDECK_PORT", "SPINDECK_LIBRARY_DIR", "SPINDECK_STATE_DIR",
		"SPINDECK_LOG_LEVEL", "SPINDECK_LOG_FILE",
		"SPINDECK_SUGGEST_URL", "SPINDECK_SUGGEST_MODEL",
		"SPINDECK_OPUS_BITRATE", "SPINDECK_MP3_BITRATE_KB",
		"SPINDECK_TRANSITION_SECONDS", "SPINDECK_TRIGGER_SECONDS",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LibraryDir != "./library" {
		t.Errorf("LibraryDir = %q, want default", cfg.LibraryDir)
	}
	if cfg.StateDir != "./state" {
		t.Errorf("StateDir = %q, want default", cfg.StateDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want 'info'", cfg.LogLevel)
	}
	if cfg.SuggestURL != "" {
		t.Errorf("SuggestURL = %q, want empty default", cfg.SuggestURL)
	}
	if cfg.SuggestModel != "llama3.2" {
		t.Errorf("SuggestModel = %q, want default", cfg.SuggestModel)
	}
	if cfg.OpusBitrate != 128000 {
		t.Errorf("OpusBitrate = %d, want 128000", cfg.OpusBitrate)
	}
	if cfg.MP3BitrateKb != 192 {
		t.Errorf("MP3BitrateKb = %d, want 192", cfg.MP3BitrateKb)
	}
	if cfg.TransitionSeconds != 8 {
		t.Errorf("TransitionSeconds = %v, want 8", cfg.TransitionSeconds)
	}
	if cfg.TriggerSeconds != 30 {
		t.Errorf("TriggerSeconds = %v, want 30", cfg.TriggerSeconds)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPINDECK_PORT", "3000")
	t.Setenv("SPINDECK_LIBRARY_DIR", "/music")
	t.Setenv("SPINDECK_STATE_DIR", "/var/spindeck")
	t.Setenv("SPINDECK_LOG_LEVEL", "debug")
	t.Setenv("SPINDECK_SUGGEST_URL", "http://localhost:11434")
	t.Setenv("SPINDECK_TRANSITION_SECONDS", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.LibraryDir != "/music" {
		t.Errorf("LibraryDir = %q, want env override", cfg.LibraryDir)
	}
	if cfg.StateDir != "/var/spindeck" {
		t.Errorf("StateDir = %q, want env override", cfg.StateDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want 'debug'", cfg.LogLevel)
	}
	if cfg.SuggestURL != "http://localhost:11434" {
		t.Errorf("SuggestURL = %q, want env override", cfg.SuggestURL)
	}
	if cfg.TransitionSeconds != 12 {
		t.Errorf("TransitionSeconds = %v, want 12", cfg.TransitionSeconds)
	}
}

func TestLoadInvalidIntFails(t *testing.T) {
	t.Setenv("SPINDECK_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid int should return an error")
	}
}
