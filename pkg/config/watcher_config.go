package config

import (
	"errors"
	"time"
)

// Watcher contains new transactions watcher settings.
type Watcher struct {
	Enabled bool `yaml:"Enabled"`
	// PollInterval is the time between two subsequent node polls.
	PollInterval time.Duration `yaml:"PollInterval"`
	// MinConfirmations is the number of confirmations a transaction needs
	// to be reported.
	MinConfirmations int `yaml:"MinConfirmations"`
	// MaxConcurrentFetches limits the number of transaction details
	// requests running in parallel.
	MaxConcurrentFetches int `yaml:"MaxConcurrentFetches"`
}

// Validate checks Watcher for internal consistency.
func (w Watcher) Validate() error {
	if !w.Enabled {
		return nil
	}
	if w.PollInterval <= 0 {
		return errors.New("PollInterval must be positive")
	}
	if w.MinConfirmations < 0 {
		return errors.New("negative MinConfirmations")
	}
	if w.MaxConcurrentFetches <= 0 {
		return errors.New("MaxConcurrentFetches must be positive")
	}
	return nil
}
