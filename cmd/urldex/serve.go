package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/api"
	"github.com/hupe1980/urldex/query"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
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

			loader := query.NewLoader(cfg, bs, logger)
			if err := loader.Load(ctx); err != nil {
				// Refuse to start without a published version.
				return err
			}
			defer loader.Close()

			metrics := &urldex.BasicMetricsCollector{}
			service := query.NewService(loader, cfg, logger, metrics)

			logger.InfoContext(ctx, "serving", "addr", addr)
			return api.NewServer(service, logger).Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
