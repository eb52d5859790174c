package config

import (
	"errors"
	"time"
)

type (
	// RPC is a websocket relay service configuration information.
	RPC struct {
		BasicService         `yaml:",inline"`
		EnableCORSWorkaround bool `yaml:"EnableCORSWorkaround"`
		MaxWebSocketClients  int  `yaml:"MaxWebSocketClients"`
		// RequestTimeout limits the time a forwarded node call can take.
		RequestTimeout time.Duration `yaml:"RequestTimeout"`
		TLSConfig      TLS           `yaml:"TLSConfig"`
	}

	// TLS describes SSL/TLS configuration.
	TLS struct {
		BasicService `yaml:",inline"`
		CertFile     string `yaml:"CertFile"`
		KeyFile      string `yaml:"KeyFile"`
	}
)

// Validate checks RPC for internal consistency. It returns an error if the
// configuration is invalid.
func (cfg *RPC) Validate() error {
	if cfg.MaxWebSocketClients < 0 {
		return errors.New("negative MaxWebSocketClients")
	}
	if cfg.RequestTimeout < 0 {
		return errors.New("negative RequestTimeout")
	}
	if cfg.TLSConfig.Enabled && (cfg.TLSConfig.CertFile == "" || cfg.TLSConfig.KeyFile == "") {
		return errors.New("TLSConfig requires both CertFile and KeyFile")
	}
	return nil
}
