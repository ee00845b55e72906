package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DefaultPath is used when SIGILS_CONFIG is unset.
const DefaultPath = "config/sigils.yaml"

// ParseEnv overlays environment variables onto target.
// Fields whose variables are unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

type location struct {
	Path string `env:"SIGILS_CONFIG" envDefault:"config/sigils.yaml"`
}

// Path returns the config file path from SIGILS_CONFIG.
func Path() string {
	var loc location
	if err := env.Parse(&loc); err != nil || loc.Path == "" {
		return DefaultPath
	}
	return loc.Path
}
