// Package config loads agent settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the agent's runtime settings. Flags may override individual
// fields after loading.
type Config struct {
	// ListenAddr is the loopback address the control API binds to.
	ListenAddr string `env:"GATEKEEPER_LISTEN" envDefault:"127.0.0.1:7568"`
	// DataDir holds the bbolt-backed secure store.
	DataDir string `env:"GATEKEEPER_DATA_DIR" envDefault:"./data"`
	// RelockAfter is how long the app may stay backgrounded before the
	// session locks again. Zero disables inactivity relock.
	RelockAfter time.Duration `env:"GATEKEEPER_RELOCK_AFTER" envDefault:"2m"`
	// NavDebounce is the settle window between navigation transitions.
	NavDebounce time.Duration `env:"GATEKEEPER_NAV_DEBOUNCE" envDefault:"75ms"`
	// LogLevel is a zerolog level string (debug, info, warn, error).
	LogLevel string `env:"GATEKEEPER_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return c, nil
}
