package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the node configuration, loaded from an optional YAML file with
// environment-variable overrides (FRABRIC_ prefix)
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Node       NodeConfig       `yaml:"node"`
	Governance GovernanceConfig `yaml:"governance"`
	Genesis    []Allocation     `yaml:"genesis"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

type NodeConfig struct {
	APIPort         uint          `yaml:"apiPort" envconfig:"API_PORT"`
	BlockInterval   time.Duration `yaml:"blockInterval" envconfig:"BLOCK_INTERVAL"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
	TreasuryAddress string        `yaml:"treasuryAddress" envconfig:"TREASURY_ADDRESS"`
}

type GovernanceConfig struct {
	VotingPeriod      time.Duration `yaml:"votingPeriod" envconfig:"VOTING_PERIOD"`
	ExecutionDelay    time.Duration `yaml:"executionDelay" envconfig:"EXECUTION_DELAY"`
	QuorumNumerator   int64         `yaml:"quorumNumerator" envconfig:"QUORUM_NUMERATOR"`
	QuorumDenominator int64         `yaml:"quorumDenominator" envconfig:"QUORUM_DENOMINATOR"`
}

// Allocation is a genesis token grant. Balance is a decimal string so
// amounts are not capped by YAML integer width.
type Allocation struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// Amount parses the allocation balance
func (a Allocation) Amount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(a.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance %q for %s", a.Balance, a.Address)
	}
	return amount, nil
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Node: NodeConfig{
			APIPort:         8090,
			BlockInterval:   5 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			TreasuryAddress: "0x0000000000000000000000000000000000000001",
		},
		Governance: GovernanceConfig{
			VotingPeriod:      72 * time.Hour,
			ExecutionDelay:    12 * time.Hour,
			QuorumNumerator:   1,
			QuorumDenominator: 10,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, in that order
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("frabric", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Governance.QuorumDenominator <= 0 {
		return fmt.Errorf("quorum denominator must be positive")
	}
	if c.Governance.QuorumNumerator < 0 ||
		c.Governance.QuorumNumerator >= c.Governance.QuorumDenominator {
		return fmt.Errorf("quorum fraction must be in [0, 1)")
	}
	if c.Governance.VotingPeriod < 0 || c.Governance.ExecutionDelay < 0 {
		return fmt.Errorf("governance durations must not be negative")
	}
	if c.Node.TreasuryAddress == "" {
		return fmt.Errorf("treasury address is required")
	}
	for _, alloc := range c.Genesis {
		if alloc.Address == "" {
			return fmt.Errorf("genesis allocation without address")
		}
		if _, err := alloc.Amount(); err != nil {
			return err
		}
	}
	return nil
}
