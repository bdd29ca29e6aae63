package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/crypto/certgen"
	"github.com/ghostnet-labs/ghostnet/internal/testutil"
	"github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
)

const (
	adminAddr    = "0x00000000000000000000000000000000000000a1"
	treasuryAddr = "0x00000000000000000000000000000000000000b2"
	playerAddr   = "0x00000000000000000000000000000000000000c3"
	arbiterAddr  = "0x00000000000000000000000000000000000000d4"
)

const tomlConfig = `
node_id = "seq-1"
data_dir = "/var/lib/ghostnet"
rpc_port = 9000
block_interval_ms = 250

[log]
level = "debug"

[entropy]
history_depth = 4096

[genesis]
chain_id = "ghostnet-test"
network_id = 7
admin = "` + adminAddr + `"
treasury = "` + treasuryAddr + `"

[genesis.alloc]
"` + playerAddr + `" = "1000.5"

[[genesis.games]]
id = "round"
min_stake = "1"
max_stake = "1000"
rake_bps = 100
burn_bps = 5000
reserve = "50000"

[[genesis.games]]
id = "match"
min_stake = "1"
max_stake = "1000"
rake_bps = 1000
burn_bps = 5000

[genesis.round]
betting_window = 60
max_players = 50
reveal_delay = 2

[genesis.match]
arbiter = "` + arbiterAddr + `"
tiers = ["50", "100"]
join_timeout = 300
active_timeout = 3600
tie_burn_bps = 1000
`

const yamlConfig = `
node_id: seq-1
data_dir: /var/lib/ghostnet
rpc_port: 9000
block_interval_ms: 250
log:
  level: debug
entropy:
  history_depth: 4096
genesis:
  chain_id: ghostnet-test
  network_id: 7
  admin: "` + adminAddr + `"
  treasury: "` + treasuryAddr + `"
  alloc:
    "` + playerAddr + `": "1000.5"
  games:
    - id: round
      min_stake: "1"
      max_stake: "1000"
      rake_bps: 100
      burn_bps: 5000
      reserve: "50000"
    - id: match
      min_stake: "1"
      max_stake: "1000"
      rake_bps: 1000
      burn_bps: 5000
  round:
    betting_window: 60
    max_players: 50
    reveal_delay: 2
  match:
    arbiter: "` + arbiterAddr + `"
    tiers: ["50", "100"]
    join_timeout: 300
    active_timeout: 3600
    tie_burn_bps: 1000
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func checkLoaded(t *testing.T, cfg *Config) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "seq-1", cfg.NodeID)
	assert.Equal(t, 9000, cfg.RPCPort)
	assert.Equal(t, int64(250), cfg.BlockInterval().Milliseconds())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(4096), cfg.Entropy.HistoryDepth)
	assert.Equal(t, 500, cfg.MaxBlockTxs, "default kept")
	assert.Equal(t, uint64(7), cfg.Genesis.NetworkID)
	assert.Len(t, cfg.Genesis.Games, 2)
	require.NotNil(t, cfg.Genesis.Round)
	assert.Equal(t, uint32(50), cfg.Genesis.Round.MaxPlayers)
	require.NotNil(t, cfg.Genesis.Match)
	assert.Equal(t, []string{"50", "100"}, cfg.Genesis.Match.Tiers)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "node.toml", tomlConfig))
	require.NoError(t, err)
	checkLoaded(t, cfg)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "node.yml", yamlConfig))
	require.NoError(t, err)
	checkLoaded(t, cfg)
}

func TestSaveLoadJSON(t *testing.T) {
	src, err := Load(writeFile(t, "node.toml", tomlConfig))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, Save(src, path))
	cfg, err := Load(path)
	require.NoError(t, err)
	checkLoaded(t, cfg)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(writeFile(t, "node.toml", "node_id = ["))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestGenesisValidation(t *testing.T) {
	cfg, err := Load(writeFile(t, "node.toml", tomlConfig))
	require.NoError(t, err)

	bad := cfg.Genesis
	bad.Admin = "nope"
	assert.Error(t, bad.Validate())

	bad = cfg.Genesis
	bad.Alloc = map[string]string{playerAddr: "1.0000000000000000001"}
	assert.Error(t, bad.Validate())

	bad = cfg.Genesis
	bad.Games = []GameGenesis{{ID: "x", MinStake: "10", MaxStake: "1", RakeBps: 1}}
	assert.Error(t, bad.Validate())

	bad = cfg.Genesis
	m := *cfg.Genesis.Match
	m.Tiers = nil
	bad.Match = &m
	assert.Error(t, bad.Validate())

	cfg.Entropy.HistoryDepth = 10
	assert.Error(t, cfg.Validate())
}

func TestCreateGenesisBlock(t *testing.T) {
	cfg, err := Load(writeFile(t, "node.toml", tomlConfig))
	require.NoError(t, err)
	state := testutil.NewStateDB()
	key := testutil.NewKey(t)

	block, err := CreateGenesisBlock(cfg, state, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), block.Header.Height)
	assert.True(t, IsGenesisHash(block.Header.PrevHash))
	require.NoError(t, block.Verify(key.Address()))
	assert.Equal(t, state.ComputeRoot(), block.Header.StateRoot)

	sys, err := state.GetSystem()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sys.NetworkID)

	player, _ := crypto.AddressFromHex(playerAddr)
	acc, err := state.GetAccount(player)
	require.NoError(t, err)
	want, _ := core.ParseTokens("1000.5")
	testutil.EqualAmount(t, want, acc.Balance)

	book, err := state.GetGameBook(core.GameRound)
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(50_000), book.Reserve)
	custody, err := state.GetAccount(ledger.Custody)
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(50_000), custody.Balance)

	mp, err := state.GetMatchParams()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(arbiterAddr), mp.Arbiter)
	testutil.EqualAmount(t, core.Tokens(100), mp.Tiers[1])

	g, err := state.GetGame(core.GameMatch)
	require.NoError(t, err)
	assert.True(t, g.Active)
}

func TestLoadTLSConfigEmpty(t *testing.T) {
	tc, err := LoadTLSConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, tc)
	_, err = LoadTLSConfig(&TLSConfig{NodeCert: "/nope.pem", NodeKey: "/nope.key"})
	assert.Error(t, err)
}

func TestLoadTLSConfigWithCA(t *testing.T) {
	files, err := certgen.Generate(t.TempDir(), "node0", nil)
	require.NoError(t, err)

	tc, err := LoadTLSConfig(&TLSConfig{NodeCert: files.ServerCert, NodeKey: files.ServerKey})
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, tls.NoClientCert, tc.ClientAuth)
	assert.Equal(t, uint16(tls.VersionTLS12), tc.MinVersion)

	tc, err = LoadTLSConfig(&TLSConfig{CACert: files.CACert, NodeCert: files.ServerCert, NodeKey: files.ServerKey})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, tc.ClientAuth)
	assert.NotNil(t, tc.ClientCAs)
}
