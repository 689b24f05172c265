package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

const validConfig = `
rpc:
  endpoint: ws://localhost:30333/ws
contract: %s
keys:
  public: fhe.pub
  secret: fhe.sec
store:
  path: records.db
oracle:
  address: :8081
`

func TestParse(t *testing.T) {
	h := util.Uint160{1, 2, 3}

	for _, s := range []string{address.Uint160ToString(h), h.StringLE()} {
		c, err := Parse([]byte(fmt.Sprintf(validConfig, s)))
		require.NoError(t, err)

		require.Equal(t, "ws://localhost:30333/ws", c.RPC.Endpoint)
		require.Equal(t, DefaultDialTimeout, c.RPC.DialTimeout)
		require.Equal(t, "info", c.Logger.Level)
		require.Equal(t, ":8081", c.Oracle.Address)
		require.Empty(t, c.Gateway.Address)

		actual, err := c.ContractHash()
		require.NoError(t, err)
		require.Equal(t, h, actual)

		log, err := c.NewLogger()
		require.NoError(t, err)
		require.NotNil(t, log)
	}
}

func TestParseFull(t *testing.T) {
	data := `
logger:
  level: debug
rpc:
  endpoint: ws://localhost:30333/ws
  dial_timeout: 1m
contract: 0000000000000000000000000000000000000001
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
metrics:
  address: :9090
`
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, time.Minute, c.RPC.DialTimeout)
	require.Equal(t, "debug", c.Logger.Level)
	require.Equal(t, Wallet{
		Path:     "verifier.json",
		Address:  "NbUgTSFvPmsRxmGeWpuuGeJUoRoi6PErcM",
		Password: "secret",
	}, c.Verifier)
	require.Equal(t, ":9090", c.Metrics.Address)
	require.Equal(t, Store{Path: "records.db", StartBlock: 1200}, c.Store)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestParseInvalid(t *testing.T) {
	valid := fmt.Sprintf(validConfig, util.Uint160{}.StringLE())

	for name, data := range map[string]string{
		"yaml":     "rpc: [",
		"endpoint": "contract: 0000000000000000000000000000000000000000",
		"contract": fmt.Sprintf(validConfig, "not an address"),
		"level":    valid + "logger:\n  level: loud\n",
		"gateway":  valid + "gateway:\n  address: :8080\n",
		"secret":   strings.Replace(valid, "  secret: fhe.sec\n", "", 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
		})
	}
}
