package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ghostnet-labs/ghostnet/arbiter"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/vm/modules/match"
	"github.com/ghostnet-labs/ghostnet/wallet"
)

func ArbiterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Sign match attestations with the arbiter key",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.PersistentFlags().Uint64("network-id", 1, "network id the signature is bound to")
	cmd.PersistentFlags().String("nonce", "", "single-use attestation nonce (decimal)")
	cmd.MarkPersistentFlagRequired("nonce")
	cmd.AddCommand(
		ArbiterSignCreateCmd(),
		ArbiterSignResultCmd(),
	)
	return cmd
}

func ArbiterSignCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-create",
		Short: "Sign a match creation and print the match_create payload",
		RunE:  arbiterSignCreate,
	}
	cmd.Flags().String("p1", "", "player 1 address")
	cmd.MarkFlagRequired("p1")
	cmd.Flags().String("p2", "", "player 2 address")
	cmd.MarkFlagRequired("p2")
	cmd.Flags().Uint8("tier", 0, "stake tier index")
	return cmd
}

func ArbiterSignResultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-result",
		Short: "Sign a match result and print the match_result payload",
		RunE:  arbiterSignResult,
	}
	cmd.Flags().Uint64("match", 0, "match id")
	cmd.MarkFlagRequired("match")
	cmd.Flags().String("winner", "", "winner address (empty for TIE or TIMEOUT)")
	cmd.Flags().String("outcome", "WIN", "WIN, TIE, FORFEIT or TIMEOUT")
	return cmd
}

func arbiterSigner(cmd *cobra.Command) (*arbiter.Signer, *big.Int, error) {
	keyPath, _ := cmd.Flags().GetString("key")
	networkID, _ := cmd.Flags().GetUint64("network-id")
	rawNonce, _ := cmd.Flags().GetString("nonce")

	nonce, ok := new(big.Int).SetString(rawNonce, 10)
	if !ok || nonce.Sign() <= 0 {
		return nil, nil, fmt.Errorf("nonce %q is not a positive integer", rawNonce)
	}
	priv, err := wallet.LoadKey(keyPath, password())
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}
	domain := arbiter.Domain{EnvironmentID: networkID, Contract: match.Contract}
	return arbiter.NewSigner(priv, domain), nonce, nil
}

func optionalAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	return crypto.AddressFromHex(s)
}

func arbiterSignCreate(cmd *cobra.Command, _ []string) error {
	signer, nonce, err := arbiterSigner(cmd)
	if err != nil {
		return err
	}
	rawP1, _ := cmd.Flags().GetString("p1")
	rawP2, _ := cmd.Flags().GetString("p2")
	tier, _ := cmd.Flags().GetUint8("tier")
	p1, err := crypto.AddressFromHex(rawP1)
	if err != nil {
		return fmt.Errorf("p1: %w", err)
	}
	p2, err := crypto.AddressFromHex(rawP2)
	if err != nil {
		return fmt.Errorf("p2: %w", err)
	}
	sig, err := signer.SignCreate(p1, p2, tier, nonce)
	if err != nil {
		return err
	}
	return printPayload(signer, core.TxMatchCreate, core.MatchCreatePayload{
		Player1: p1, Player2: p2, Tier: tier, Nonce: nonce, Signature: sig,
	})
}

func arbiterSignResult(cmd *cobra.Command, _ []string) error {
	signer, nonce, err := arbiterSigner(cmd)
	if err != nil {
		return err
	}
	matchID, _ := cmd.Flags().GetUint64("match")
	rawWinner, _ := cmd.Flags().GetString("winner")
	rawOutcome, _ := cmd.Flags().GetString("outcome")
	outcome, err := core.ParseOutcome(rawOutcome)
	if err != nil {
		return err
	}
	winner, err := optionalAddress(rawWinner)
	if err != nil {
		return fmt.Errorf("winner: %w", err)
	}
	sig, err := signer.SignResult(matchID, winner, outcome, nonce)
	if err != nil {
		return err
	}
	return printPayload(signer, core.TxMatchResult, core.MatchResultPayload{
		MatchID: matchID, Winner: winner, Outcome: outcome, Nonce: nonce, Signature: sig,
	})
}

func printPayload(signer *arbiter.Signer, typ core.TxType, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	pterm.Info.Printfln("%s signed by %s", typ, signer.Address().Hex())
	fmt.Println(string(data))
	return nil
}
