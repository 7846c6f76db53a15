package config_test

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractional-finance/frabric-protocol/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, uint(8090), cfg.Node.APIPort)
	assert.Equal(t, 5*time.Second, cfg.Node.BlockInterval)
	assert.Equal(t, 72*time.Hour, cfg.Governance.VotingPeriod)
	assert.Equal(t, 12*time.Hour, cfg.Governance.ExecutionDelay)
	assert.Equal(t, int64(1), cfg.Governance.QuorumNumerator)
	assert.Equal(t, int64(10), cfg.Governance.QuorumDenominator)
	assert.Empty(t, cfg.Genesis)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
node:
  apiPort: 9000
  blockInterval: 2s
governance:
  votingPeriod: 1h
  quorumNumerator: 2
  quorumDenominator: 5
genesis:
  - address: "0xa11ce"
    balance: "1000000000000000000"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, uint(9000), cfg.Node.APIPort)
	assert.Equal(t, 2*time.Second, cfg.Node.BlockInterval)
	assert.Equal(t, time.Hour, cfg.Governance.VotingPeriod)
	// Defaults survive for keys the file omits
	assert.Equal(t, 12*time.Hour, cfg.Governance.ExecutionDelay)
	assert.Equal(t, int64(2), cfg.Governance.QuorumNumerator)
	assert.Equal(t, int64(5), cfg.Governance.QuorumDenominator)

	require.Len(t, cfg.Genesis, 1)
	amount, err := cfg.Genesis[0].Amount()
	require.NoError(t, err)
	expected, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Zero(t, amount.Cmp(expected))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FRABRIC_API_PORT", "7070")
	t.Setenv("FRABRIC_VOTING_PERIOD", "30m")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, uint(7070), cfg.Node.APIPort)
	assert.Equal(t, 30*time.Minute, cfg.Governance.VotingPeriod)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "zero quorum denominator",
			yaml: "governance:\n  quorumDenominator: 0\n",
		},
		{
			name: "quorum fraction at one",
			yaml: "governance:\n  quorumNumerator: 10\n  quorumDenominator: 10\n",
		},
		{
			name: "negative voting period",
			yaml: "governance:\n  votingPeriod: -1h\n",
		},
		{
			name: "empty treasury address",
			yaml: "node:\n  treasuryAddress: \"\"\n",
		},
		{
			name: "bad genesis balance",
			yaml: "genesis:\n  - address: \"0xa11ce\"\n    balance: \"lots\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
