package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile  string
	metricsAddr string
}

// NewRootCommand builds the rehabdocs command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "rehabdocs",
		Short: "Supporting-document issuance for personal rehabilitation cases",
		Long: `rehabdocs keeps resident identity numbers and client certificates encrypted,
issues supporting documents through the Hyphen API and tracks each case's
required-document checklist.

Settings come from --config and REHABDOCS_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		newVaultCmd(opts),
		newCertCmd(opts),
		newIssueCmd(opts),
		newBatchCmd(opts),
		newMissingCmd(opts),
		newSeedCmd(opts),
		newResetCmd(opts),
		newDiagnoseCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
