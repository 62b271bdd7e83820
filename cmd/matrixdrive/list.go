package main

import (
	"fmt"
	"strings"

	"github.com/bgricker/matrixdrive/internal/config"
	"github.com/bgricker/matrixdrive/internal/output"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the expanded jobs without running them",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	specs, err := buildPlan(cfg)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching jobs")
		return nil
	}

	switch strings.ToLower(cfg.Format) {
	case config.FormatPretty:
		return output.NewPretty(cmd.OutOrStdout()).RenderPlan(specs)
	case config.FormatJSON:
		return output.NewJSON(cmd.OutOrStdout()).RenderPlan(output.Plan{
			Project: cfg.Project,
			Jobs:    specs,
		})
	default:
		return fmt.Errorf("unsupported format %q", cfg.Format)
	}
}
