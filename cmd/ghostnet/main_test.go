package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/config"
	"github.com/ghostnet-labs/ghostnet/internal/testutil"
	"github.com/ghostnet-labs/ghostnet/wallet"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := rootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestMultiplier(t *testing.T) {
	assert.Equal(t, "1.00x", multiplier(100))
	assert.Equal(t, "2.05x", multiplier(205))
	assert.Equal(t, "100.00x", multiplier(10_000))
}

func TestGenKeyInitAndSign(t *testing.T) {
	t.Setenv(passwordEnv, "pw")
	dir := t.TempDir()
	key := filepath.Join(dir, "validator.key")
	cfgPath := filepath.Join(dir, "ghostnet.yaml")

	require.NoError(t, run(t, "genkey", "--key", key))
	assert.Error(t, run(t, "genkey", "--key", key), "existing keystore is not overwritten")

	require.NoError(t, run(t, "init", "--key", key, "--config", cfgPath, "--network-id", "9"))
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	priv, err := wallet.LoadKey(key, "pw")
	require.NoError(t, err)
	assert.Equal(t, priv.Address().Hex(), cfg.Genesis.Admin)
	assert.Equal(t, uint64(9), cfg.Genesis.NetworkID)
	require.NotNil(t, cfg.Genesis.Match)
	assert.Equal(t, priv.Address().Hex(), cfg.Genesis.Match.Arbiter)

	p1 := testutil.NewKey(t).Address().Hex()
	p2 := testutil.NewKey(t).Address().Hex()
	require.NoError(t, run(t, "arbiter", "sign-create", "--key", key, "--p1", p1, "--p2", p2, "--nonce", "1"))
	require.NoError(t, run(t, "arbiter", "sign-result", "--key", key, "--match", "1", "--winner", p1, "--nonce", "2"))
	assert.Error(t, run(t, "arbiter", "sign-result", "--key", key, "--match", "1", "--outcome", "DRAW", "--nonce", "3"))
	assert.Error(t, run(t, "arbiter", "sign-create", "--key", key, "--p1", p1, "--p2", p2, "--nonce", "0"))
}

func TestVerifyRound(t *testing.T) {
	hash := "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000"
	require.NoError(t, run(t, "verify-round", "--hash", hash, "--round", "3", "--target", "150"))
	assert.Error(t, run(t, "verify-round", "--hash", "0x1234", "--round", "3"))
	assert.Error(t, run(t, "verify-round", "--hash", hash, "--round", "3", "--target", "100"))
}

func TestGenCerts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, "gencerts", "--out", dir, "--host", "10.1.2.3"))
	tc, err := config.LoadTLSConfig(&config.TLSConfig{
		CACert:   filepath.Join(dir, "ca.crt"),
		NodeCert: filepath.Join(dir, "rpc.crt"),
		NodeKey:  filepath.Join(dir, "rpc.key"),
	})
	require.NoError(t, err)
	assert.NotNil(t, tc)
}
