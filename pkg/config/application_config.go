package config

import (
	"fmt"
)

// ApplicationConfiguration config specific to the relay.
type ApplicationConfiguration struct {
	LogLevel   string       `yaml:"LogLevel"`
	LogPath    string       `yaml:"LogPath"`
	Node       Node         `yaml:"Node"`
	RPC        RPC          `yaml:"RPC"`
	Watcher    Watcher      `yaml:"Watcher"`
	Prometheus BasicService `yaml:"Prometheus"`
	Pprof      BasicService `yaml:"Pprof"`
}

// Validate checks ApplicationConfiguration for internal consistency and returns
// an error if any invalid settings are found.
func (a *ApplicationConfiguration) Validate() error {
	if err := a.Node.Validate(); err != nil {
		return fmt.Errorf("invalid Node config: %w", err)
	}
	if err := a.RPC.Validate(); err != nil {
		return fmt.Errorf("invalid RPC config: %w", err)
	}
	if err := a.Watcher.Validate(); err != nil {
		return fmt.Errorf("invalid Watcher config: %w", err)
	}
	return nil
}
