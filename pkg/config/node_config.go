package config

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"
)

type (
	// Node describes the ledger node (bitcoind) connection.
	Node struct {
		Address     string `yaml:"Address"`
		Port        uint16 `yaml:"Port"`
		TestnetPort uint16 `yaml:"TestnetPort"`
		// Testnet makes the relay use TestnetPort, it's also set when
		// testnet configuration is loaded.
		Testnet  bool    `yaml:"Testnet"`
		User     string  `yaml:"User"`
		Password string  `yaml:"Password"`
		TLS      NodeTLS `yaml:"TLS"`
		// DialTimeout and RequestTimeout are passed to the node client,
		// client defaults are used if not set.
		DialTimeout    time.Duration `yaml:"DialTimeout"`
		RequestTimeout time.Duration `yaml:"RequestTimeout"`
	}

	// NodeTLS is the client-side TLS configuration for the node connection.
	NodeTLS struct {
		Enabled    bool   `yaml:"Enabled"`
		CACertFile string `yaml:"CACertFile"`
		// Insecure disables node certificate verification.
		Insecure bool `yaml:"Insecure"`
	}
)

// Endpoint returns the node URL.
func (n Node) Endpoint() string {
	port := n.Port
	if n.Testnet {
		port = n.TestnetPort
	}
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(n.Address, strconv.FormatUint(uint64(port), 10)),
	}
	if n.TLS.Enabled {
		u.Scheme = "https"
	}
	return u.String()
}

// Validate checks Node for internal consistency.
func (n Node) Validate() error {
	if n.Address == "" {
		return errors.New("empty Address")
	}
	if (n.Testnet && n.TestnetPort == 0) || (!n.Testnet && n.Port == 0) {
		return errors.New("zero port")
	}
	if n.TLS.Enabled && n.TLS.CACertFile == "" && !n.TLS.Insecure {
		return errors.New("TLS requires either CACertFile or Insecure")
	}
	return nil
}
