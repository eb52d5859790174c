package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/config/netmode"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the default path to the config directory.
	DefaultConfigPath = "./config"

	// DefaultWSAddress is the default relay listening address.
	DefaultWSAddress = ":18337"
	// DefaultMaxWebSocketClients is the default maximum number of
	// simultaneously connected relay clients.
	DefaultMaxWebSocketClients = 64
	// DefaultRequestTimeout is the default forwarded call timeout.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultNodeAddress is the default ledger node host.
	DefaultNodeAddress = "127.0.0.1"
	// DefaultNodePort is the default bitcoind mainnet RPC port.
	DefaultNodePort = 8332
	// DefaultNodeTestnetPort is the default bitcoind testnet RPC port.
	DefaultNodeTestnetPort = 18332

	// DefaultPollInterval is the default watcher poll interval.
	DefaultPollInterval = 5 * time.Second
	// DefaultMinConfirmations is the default watcher confirmation threshold.
	DefaultMinConfirmations = 6
	// DefaultMaxConcurrentFetches is the default number of parallel
	// transaction details requests in a single watch cycle.
	DefaultMaxConcurrentFetches = 8
)

// Version is the version of the relay, set at build time.
var Version string

// Config top level struct representing the config
// for the relay.
type Config struct {
	ApplicationConfiguration ApplicationConfiguration `yaml:"ApplicationConfiguration"`
}

// Load attempts to load the config from the given
// path for the given netMode.
func Load(path string, netMode netmode.Magic) (Config, error) {
	configPath := filepath.Join(path, fmt.Sprintf("relay.%s.yml", netMode))
	cfg, err := LoadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	if netMode == netmode.TestNet {
		cfg.ApplicationConfiguration.Node.Testnet = true
	}
	return cfg, nil
}

// Default returns the configuration with all defaults applied, it's the
// base every configuration file is decoded into.
func Default() Config {
	return Config{
		ApplicationConfiguration: ApplicationConfiguration{
			Node: Node{
				Address:     DefaultNodeAddress,
				Port:        DefaultNodePort,
				TestnetPort: DefaultNodeTestnetPort,
			},
			RPC: RPC{
				BasicService: BasicService{
					Enabled:   true,
					Addresses: []string{DefaultWSAddress},
				},
				MaxWebSocketClients: DefaultMaxWebSocketClients,
				RequestTimeout:      DefaultRequestTimeout,
			},
			Watcher: Watcher{
				Enabled:              true,
				PollInterval:         DefaultPollInterval,
				MinConfirmations:     DefaultMinConfirmations,
				MaxConcurrentFetches: DefaultMaxConcurrentFetches,
			},
		},
	}
}

// LoadFile loads config from the provided path. Unknown fields are not
// allowed there.
func LoadFile(configPath string) (Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config '%s' doesn't exist", configPath)
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}

	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(configData))
	decoder.KnownFields(true)
	err = decoder.Decode(&config)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	err = config.ApplicationConfiguration.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
