package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/index"
)

func newBuildCmd(v *viper.Viper) *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and publish a new index version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := newLogger(v)

			bs, err := newBlobStore(ctx, v, cfg)
			if err != nil {
				return err
			}

			metrics := &urldex.BasicMetricsCollector{}
			builder := index.NewBuilder(cfg, bs, logger, metrics)

			var version string
			if incremental {
				version, err = builder.BuildIncremental(ctx)
			} else {
				version, err = builder.Build(ctx)
			}
			logger.LogBuild(ctx, version, incremental, err)
			return err
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "reuse the previous version and index only new files")
	return cmd
}
