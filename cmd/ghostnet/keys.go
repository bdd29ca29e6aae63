package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ghostnet-labs/ghostnet/config"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/wallet"
)

func GenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a key and save it encrypted to --key",
		RunE:  genKey,
	}
}

func genKey(cmd *cobra.Command, _ []string) error {
	keyPath, _ := cmd.Flags().GetString("key")
	if _, err := os.Stat(keyPath); err == nil {
		return fmt.Errorf("%s already exists", keyPath)
	}
	priv, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(keyPath, password(), priv); err != nil {
		return err
	}
	pterm.Success.Printfln("Generated key %s", priv.Address().Hex())
	pterm.Info.Printfln("Saved to %s", keyPath)
	return nil
}

func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a single-node development config owned by --key",
		RunE:  initConfig,
	}
	cmd.Flags().StringP("config", "c", "ghostnet.toml", "config file to write (.toml, .yaml or .json)")
	cmd.Flags().String("chain-id", "ghostnet-dev", "chain id")
	cmd.Flags().Uint64("network-id", 1, "network id bound into arbiter signatures")
	cmd.Flags().String("alloc", "1000000", "tokens allocated to the key at genesis")
	return cmd
}

func initConfig(cmd *cobra.Command, _ []string) error {
	keyPath, _ := cmd.Flags().GetString("key")
	cfgPath, _ := cmd.Flags().GetString("config")
	chainID, _ := cmd.Flags().GetString("chain-id")
	networkID, _ := cmd.Flags().GetUint64("network-id")
	alloc, _ := cmd.Flags().GetString("alloc")

	priv, err := wallet.LoadKey(keyPath, password())
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	owner := priv.Address().Hex()

	cfg := config.DefaultConfig()
	cfg.Validators = []string{owner}
	g := &cfg.Genesis
	g.ChainID = chainID
	g.NetworkID = networkID
	g.Admin = owner
	g.Treasury = owner
	g.Alloc[owner] = alloc
	g.Games = []config.GameGenesis{
		{ID: core.GameRound, MinStake: "1", MaxStake: "1000", RakeBps: 100, BurnBps: 5000, Reserve: "100000"},
		{ID: core.GameMatch, MinStake: "1", MaxStake: "10000", RakeBps: 500, BurnBps: 5000},
	}
	g.Round = &core.RoundParams{BettingWindow: 15, MaxPlayers: 100, RevealDelay: 1}
	g.Match = &config.MatchGenesis{
		Arbiter:       owner,
		Tiers:         []string{"10", "50", "100"},
		JoinTimeout:   300,
		ActiveTimeout: 3600,
		TieBurnBps:    1000,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote %s", cfgPath)
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"chain", "network", "admin", "alloc"},
		{chainID, fmt.Sprint(networkID), owner, alloc},
	}).Render()
}
