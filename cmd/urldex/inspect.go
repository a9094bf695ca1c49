package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/urldex/index"
	"github.com/hupe1980/urldex/query"
	"github.com/hupe1980/urldex/registry"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print index statistics, optionally for a single domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			manifest, err := index.OpenManifest(cfg.BasePath)
			if err != nil {
				return err
			}
			current, ok := manifest.Current()
			if !ok {
				return fmt.Errorf("no published index version at %s", cfg.BasePath)
			}

			stats, err := index.CollectStats(cfg.BasePath, current)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "version:           %s\n", stats.Version)
			fmt.Fprintf(out, "created:           %s\n", current.CreatedAt)
			fmt.Fprintf(out, "domains:           %d\n", stats.NumDomains)
			fmt.Fprintf(out, "part files:        %d\n", stats.NumFiles)
			fmt.Fprintf(out, "memberships:       %d\n", stats.MembershipRefs)
			fmt.Fprintf(out, "postings keys:     %d\n", stats.PostingsKeys)
			fmt.Fprintf(out, "recorded versions: %d\n", len(manifest.Versions()))

			if reg, err := registry.OpenReadOnly(cfg.BasePath); err == nil {
				fmt.Fprintf(out, "datasets:          %d\n", reg.Len())
			}

			if domain == "" {
				return nil
			}

			bs, err := newBlobStore(ctx, v, cfg)
			if err != nil {
				return err
			}
			loader := query.NewLoader(cfg, bs, nil)
			if err := loader.Load(ctx); err != nil {
				return err
			}
			defer loader.Close()

			result, err := query.NewService(loader, cfg, nil, nil).DatasetsOf(ctx, domain)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\ndomain:            %s\n", domain)
			if !result.Found {
				fmt.Fprintln(out, "not indexed")
				return nil
			}
			fmt.Fprintf(out, "domain_id:         %d\n", result.DomainID)
			for _, d := range result.Datasets {
				fmt.Fprintf(out, "dataset:           %d\n", d.DatasetID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "also resolve this domain against the current version")
	return cmd
}
