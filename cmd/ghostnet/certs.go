package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ghostnet-labs/ghostnet/crypto/certgen"
)

func GenCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gencerts",
		Short: "Issue a CA, RPC server and operator client certificates",
		RunE:  genCerts,
	}
	cmd.Flags().StringP("out", "o", "certs", "output directory")
	cmd.Flags().String("node-id", "node0", "node id used as the certificate subject")
	cmd.Flags().StringSlice("host", nil, "extra IP or DNS name for the RPC certificate (repeatable)")
	return cmd
}

func genCerts(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	nodeID, _ := cmd.Flags().GetString("node-id")
	hosts, _ := cmd.Flags().GetStringSlice("host")

	files, err := certgen.Generate(out, nodeID, hosts)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Certificates written to %s", out)
	pterm.Info.Println("Add to the node config to serve HTTPS with client authentication:")
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"tls key", "path"},
		{"ca_cert", files.CACert},
		{"node_cert", files.ServerCert},
		{"node_key", files.ServerKey},
	}).Render()
}
