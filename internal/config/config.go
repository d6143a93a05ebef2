package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration, loaded from SPINDECK_* environment
// variables.
type Config struct {
	// Server
	Port int `default:"8080"`

	// Track library
	LibraryDir string `split_words:"true" default:"./library"`

	// Persistent state (FX chains, MIDI mappings, beat kits)
	StateDir string `split_words:"true" default:"./state"`

	// Logging
	LogLevel string `split_words:"true" default:"info"`
	LogFile  string `split_words:"true" default:""`

	// Suggestion LLM (optional -- empty URL disables suggestions)
	SuggestURL   string `split_words:"true" default:""`
	SuggestModel string `split_words:"true" default:"llama3.2"`

	// Microphone talkover (optional -- empty device disables capture)
	MicDevice string `split_words:"true" default:""`

	// Monitor streams
	OpusBitrate  int `split_words:"true" default:"128000"`
	MP3BitrateKb int `split_words:"true" default:"192"`

	// Auto-DJ defaults
	TransitionSeconds float64 `split_words:"true" default:"8"`
	TriggerSeconds    float64 `split_words:"true" default:"30"`
}

// Load reads configuration from the environment with sane defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("spindeck", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
