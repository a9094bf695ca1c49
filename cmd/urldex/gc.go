package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/urldex/index"
)

func newGCCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove index versions beyond the retention count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := newLogger(v)

			removed, err := index.GC(cfg.BasePath, cfg.VersionRetentionCount)
			if err != nil {
				return err
			}
			logger.InfoContext(cmd.Context(), "gc finished",
				"removed", len(removed),
				"versions", removed,
				"kept", cfg.VersionRetentionCount,
			)
			return nil
		},
	}
	return cmd
}
