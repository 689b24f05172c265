/*
Package config describes YAML configuration of the FHE node.

Example:

	logger:
	  level: info
	rpc:
	  endpoint: ws://localhost:30333/ws
	  dial_timeout: 5s
	contract: NfgHwwTi3wHAS8aFAN243C5vGbkYDpqLHP
	keys:
	  public: fhe.pub
	  secret: fhe.sec
	verifier:
	  wallet: verifier.json
	  address: NbUgTSFvPmsRxmGeWpuuGeJUoRoi6PErcM
	  password: secret
	store:
	  path: records.db
	  start_block: 1200
	gateway:
	  address: :8080
	oracle:
	  address: :8081
	metrics:
	  address: :9090
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultDialTimeout is used when rpc.dial_timeout is not set.
const DefaultDialTimeout = 5 * time.Second

// Config is a root of the FHE node configuration.
type Config struct {
	Logger   Logger `yaml:"logger"`
	RPC      RPC    `yaml:"rpc"`
	Contract string `yaml:"contract"`
	Keys     Keys   `yaml:"keys"`
	Verifier Wallet `yaml:"verifier"`
	Store    Store  `yaml:"store"`
	Gateway  Server `yaml:"gateway"`
	Oracle   Server `yaml:"oracle"`
	Metrics  Server `yaml:"metrics"`
}

// Logger configures zap logger.
type Logger struct {
	Level string `yaml:"level"`
}

// RPC configures connection to the Neo node.
type RPC struct {
	Endpoint    string        `yaml:"endpoint"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Keys are paths to the FHE key files.
type Keys struct {
	Public string `yaml:"public"`
	Secret string `yaml:"secret"`
}

// Wallet locates the input verifier account.
type Wallet struct {
	Path     string `yaml:"wallet"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// Store configures ciphertext storage.
type Store struct {
	Path string `yaml:"path"`
	// Index of the first block replayed by the coprocessor when the store
	// has no processed blocks yet, e.g. contract deployment height.
	StartBlock uint32 `yaml:"start_block"`
}

// Server configures listening HTTP server. Empty address disables it.
type Server struct {
	Address string `yaml:"address"`
}

// Load reads and validates configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration applying defaults.
func Parse(data []byte) (*Config, error) {
	c := new(Config)

	err := yaml.Unmarshal(data, c)
	if err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}

	if c.RPC.DialTimeout == 0 {
		c.RPC.DialTimeout = DefaultDialTimeout
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}

	return c, c.validate()
}

func (c *Config) validate() error {
	switch {
	case c.RPC.Endpoint == "":
		return errors.New("missing rpc.endpoint")
	case c.Contract == "":
		return errors.New("missing contract")
	case c.Keys.Public == "" || c.Keys.Secret == "":
		return errors.New("missing FHE key paths")
	case c.Store.Path == "":
		return errors.New("missing store.path")
	case c.Gateway.Address != "" && (c.Verifier.Path == "" || c.Verifier.Address == ""):
		return errors.New("gateway requires verifier wallet and address")
	}

	if _, err := c.ContractHash(); err != nil {
		return err
	}

	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid logger.level: %w", err)
	}

	return nil
}

// ContractHash decodes contract address given either as Neo address or
// little-endian hex string.
func (c *Config) ContractHash() (util.Uint160, error) {
	h, err := address.StringToUint160(c.Contract)
	if err == nil {
		return h, nil
	}

	h, err = util.Uint160DecodeStringLE(c.Contract)
	if err != nil {
		return h, fmt.Errorf("invalid contract address %q", c.Contract)
	}

	return h, nil
}

// NewLogger builds production zap logger of the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.Logger.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}
