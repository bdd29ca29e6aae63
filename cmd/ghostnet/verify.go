package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ghostnet-labs/ghostnet/vm/modules/round"
)

func VerifyRoundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-round",
		Short: "Recompute a round's crash multiplier from its entropy block hash",
		RunE:  verifyRound,
	}
	cmd.Flags().String("hash", "", "entropy block hash (hex)")
	cmd.MarkFlagRequired("hash")
	cmd.Flags().Uint64("round", 0, "round id")
	cmd.MarkFlagRequired("round")
	cmd.Flags().Uint64("target", 0, "optional target in hundredths (250 = 2.50x) to check")
	return cmd
}

func verifyRound(cmd *cobra.Command, _ []string) error {
	rawHash, _ := cmd.Flags().GetString("hash")
	roundID, _ := cmd.Flags().GetUint64("round")
	target, _ := cmd.Flags().GetUint64("target")

	hash := common.FromHex(strings.TrimSpace(rawHash))
	if len(hash) != common.HashLength {
		return fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(hash))
	}
	outcome := round.CrashPoint(hash, roundID)
	rows := pterm.TableData{
		{"round", "entropy hash", "multiplier"},
		{fmt.Sprint(roundID), common.Bytes2Hex(hash), multiplier(outcome)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}
	if target == 0 {
		return nil
	}
	if target < round.MinTarget || target > round.MaxTarget {
		return fmt.Errorf("target %d outside [%d, %d]", target, round.MinTarget, round.MaxTarget)
	}
	if round.Wins(target, outcome) {
		pterm.Success.Printfln("Target %s wins", multiplier(target))
	} else {
		pterm.Warning.Printfln("Target %s loses", multiplier(target))
	}
	return nil
}

func multiplier(v uint64) string {
	return fmt.Sprintf("%d.%02dx", v/round.Precision, v%round.Precision)
}
