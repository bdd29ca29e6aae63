// Command ghostnet runs a settlement node and the operator tooling around it.
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
	_ "github.com/ghostnet-labs/ghostnet/vm/modules/match"
	_ "github.com/ghostnet-labs/ghostnet/vm/modules/round"
	_ "github.com/ghostnet-labs/ghostnet/vm/modules/token"
)

// passwordEnv holds the keystore password. Flags would leak it via ps.
const passwordEnv = "GHOSTNET_PASSWORD"

func main() {
	if err := rootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ghostnet",
		Short:         "GHOSTNET wagering settlement chain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("key", "k", "validator.key", "path to keystore file")
	cmd.AddCommand(
		NodeCmd(),
		InitCmd(),
		GenKeyCmd(),
		GenCertsCmd(),
		ArbiterCmd(),
		VerifyRoundCmd(),
	)
	return cmd
}

func password() string {
	pw := os.Getenv(passwordEnv)
	if pw == "" {
		pterm.Warning.Printfln("%s is not set", passwordEnv)
	}
	return pw
}
