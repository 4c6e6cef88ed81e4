package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// MinSessionSecretLength is the shortest accepted SESSION_SECRET in bytes.
const MinSessionSecretLength = 32

// Config contains service configuration parameters.
type Config struct {
	Log     Log     `envPrefix:"LOG_"`
	HTTP    HTTP    `envPrefix:"HTTP_"`
	Auth    Auth    `envPrefix:"AUTH_"`
	Session Session `envPrefix:"SESSION_"`
	Redis   Redis   `envPrefix:"REDIS_"`
	Ledger  Ledger  `envPrefix:"LEDGER_"`
	Events  Events  `envPrefix:"EVENTS_"`
}

// Log contains logger parameters.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// HTTP contains HTTP server parameters.
type HTTP struct {
	Addr          string `env:"ADDR" envDefault:":9000"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`
}

// Auth contains sign-in challenge parameters.
type Auth struct {
	Domain        string        `env:"DOMAIN"`
	Statement     string        `env:"STATEMENT"`
	ChainID       int64         `env:"CHAIN_ID" envDefault:"1"`
	ChallengeTTL  time.Duration `env:"CHALLENGE_TTL" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	IdentitySalt  string        `env:"IDENTITY_SALT" envDefault:"development"`
}

// Session contains session token parameters.
type Session struct {
	Secret   string        `env:"SECRET,required"`
	Lifetime time.Duration `env:"LIFETIME" envDefault:"168h"`
}

// Redis selects the Redis backed stores. An empty URL keeps everything in
// process memory.
type Redis struct {
	URL string `env:"URL"`
}

// Ledger contains BookingIntegrity contract parameters.
type Ledger struct {
	RPCURL          string        `env:"RPC_URL"`
	ContractAddress string        `env:"CONTRACT_ADDRESS"`
	PrivateKey      string        `env:"PRIVATE_KEY"`
	ChainID         int64         `env:"CHAIN_ID" envDefault:"1"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// Configured reports whether a contract can be reached.
func (l Ledger) Configured() bool {
	return l.RPCURL != "" && l.ContractAddress != ""
}

// Events contains event publishing parameters. Publishing needs Redis.
type Events struct {
	Enabled      bool   `env:"ENABLED" envDefault:"false"`
	StreamPrefix string `env:"STREAM_PREFIX"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if len(c.Session.Secret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLength)
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("SESSION_LIFETIME must be positive")
	}
	if c.Auth.ChallengeTTL <= 0 {
		return errors.New("AUTH_CHALLENGE_TTL must be positive")
	}
	if c.Auth.SweepInterval <= 0 {
		return errors.New("AUTH_SWEEP_INTERVAL must be positive")
	}
	if c.Auth.ChainID <= 0 {
		return errors.New("AUTH_CHAIN_ID must be positive")
	}
	if c.Ledger.Timeout <= 0 {
		return errors.New("LEDGER_TIMEOUT must be positive")
	}
	if c.Events.Enabled && c.Redis.URL == "" {
		return errors.New("EVENTS_ENABLED requires REDIS_URL")
	}

	if !c.Ledger.Configured() {
		return nil
	}
	if !common.IsHexAddress(c.Ledger.ContractAddress) {
		return fmt.Errorf("LEDGER_CONTRACT_ADDRESS %q is not an address", c.Ledger.ContractAddress)
	}
	if c.Ledger.ChainID <= 0 {
		return errors.New("LEDGER_CHAIN_ID must be positive")
	}
	if _, err := c.Ledger.Key(); err != nil {
		return err
	}

	return nil
}

// Key parses LEDGER_PRIVATE_KEY.
func (l Ledger) Key() (*ecdsa.PrivateKey, error) {
	if l.PrivateKey == "" {
		return nil, errors.New("LEDGER_PRIVATE_KEY is required when the ledger is configured")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(l.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.New("LEDGER_PRIVATE_KEY is not a valid secp256k1 key")
	}
	return key, nil
}
