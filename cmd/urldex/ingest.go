package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/urldex/ingest"
	"github.com/hupe1980/urldex/registry"
	"github.com/hupe1980/urldex/store"
)

func newIngestCmd(v *viper.Viper) *cobra.Command {
	var (
		batchSize int
		noDedup   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <name> <source>",
		Short: "Ingest a URL list file into the named dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, sourcePath := args[0], args[1]

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := newLogger(v)

			bs, err := newBlobStore(ctx, v, cfg)
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg.BasePath)
			if err != nil {
				return err
			}

			writer := store.NewWriter(bs, store.WriterOptions{
				PartitionBufferSize: cfg.PartitionBufferSize,
				GlobalBufferLimit:   cfg.GlobalBufferLimit,
			})

			var tracker *ingest.DuplicateTracker
			if !noDedup {
				tracker, err = ingest.NewDuplicateTracker(cfg.BasePath)
				if err != nil {
					return err
				}
			}

			src, err := ingest.OpenListFile(sourcePath, batchSize)
			if err != nil {
				return err
			}
			defer src.Close()

			proc := ingest.NewProcessor(reg, writer, tracker, logger, nil)
			total, err := proc.Ingest(ctx, name, src)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "ingest finished",
				"dataset", name,
				"accepted", total.Accepted,
				"rejected", total.Rejected,
				"duplicates", total.Duplicates,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 10000, "URLs per processing batch")
	cmd.Flags().BoolVar(&noDedup, "no-dedup", false, "disable the duplicate tracker")
	return cmd
}
