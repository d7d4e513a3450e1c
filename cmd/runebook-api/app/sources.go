package app

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/runebook/runebook-gateway/internal/config"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the configured guide sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return renderSources(cmd, cfg.Sources)
		},
	}
	cmd.Flags().String("config", "", "Path to configuration file (required)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
	return cmd
}

func renderSources(cmd *cobra.Command, sources []config.SourceConfig) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Name", "Type", "Endpoint", "Rate limit")

	for _, src := range sources {
		rate := "unlimited"
		if src.RequestsPerSecond > 0 {
			rate = strconv.FormatFloat(src.RequestsPerSecond, 'f', -1, 64) + "/s burst " + strconv.Itoa(src.GetBurst())
		}
		if err := table.Append(src.Name, src.Type, src.Endpoint, rate); err != nil {
			return fmt.Errorf("failed to render source %s: %w", src.Name, err)
		}
	}
	return table.Render()
}
