package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "matrixdrive",
		Short:         "Matrixdrive verifies a project across its platform/feature matrix",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.StringArray("job", nil, "job filter: substring or /regex/ over job identity, family, or axis value (repeatable)")
	persistent.String("format", "pretty", "output format (pretty|json)")
	persistent.Int("concurrency", 0, "maximum parallel jobs (default: platform count)")
	persistent.Bool("dry-run", false, "expand the matrix without executing commands")
	persistent.BoolP("verbose", "v", false, "stream step output in real time")
	persistent.String("log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}
