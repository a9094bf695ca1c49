package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/blobstore"
	minioblob "github.com/hupe1980/urldex/blobstore/minio"
	s3blob "github.com/hupe1980/urldex/blobstore/s3"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "urldex",
		Short:         "Index and query URL datasets at web-crawl scale",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("base-path", "./data", "root directory for urls/, index/ and registry/")
	flags.String("config", "", "config file (default searches ./urldex.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("store-flavor", "local", "columnar store backend: local, s3 or minio")

	cmd.AddCommand(
		newIngestCmd(v),
		newBuildCmd(v),
		newServeCmd(v),
		newInspectCmd(v),
		newGCCmd(v),
	)
	return cmd
}

func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	v.SetEnvPrefix("URLDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("partition-buffer-size", 128<<20)
	v.SetDefault("global-buffer-limit", 1<<30)
	v.SetDefault("compression-level", 6)
	v.SetDefault("postings-shards", 1024)
	v.SetDefault("max-limit", 10000)
	v.SetDefault("version-retention-count", 5)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("urldex")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) (urldex.Config, error) {
	cfg := urldex.Config{
		BasePath:              v.GetString("base-path"),
		PartitionBufferSize:   v.GetInt64("partition-buffer-size"),
		GlobalBufferLimit:     v.GetInt64("global-buffer-limit"),
		CompressionLevel:      v.GetInt("compression-level"),
		PostingsShards:        v.GetInt("postings-shards"),
		MaxLimit:              v.GetInt("max-limit"),
		VersionRetentionCount: v.GetInt("version-retention-count"),
		Flavor:                urldex.StoreFlavor(v.GetString("store-flavor")),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(v *viper.Viper) *urldex.Logger {
	var level slog.Level
	switch v.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return urldex.NewTextLogger(level)
}

// newBlobStore assembles the columnar store backend. Index artifacts stay
// local regardless of flavor.
func newBlobStore(ctx context.Context, v *viper.Viper, cfg urldex.Config) (blobstore.BlobStore, error) {
	switch cfg.Flavor {
	case urldex.StoreLocal, "":
		return blobstore.NewLocalStore(cfg.BasePath), nil

	case urldex.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		bucket := v.GetString("s3-bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3-bucket is required for the s3 flavor")
		}
		inner := s3blob.NewStore(awss3.NewFromConfig(awsCfg), bucket, v.GetString("s3-prefix"))
		return blobstore.NewRetryingStore(inner, urldex.DefaultRetryPolicy), nil

	case urldex.StoreMinIO:
		endpoint := v.GetString("minio-endpoint")
		bucket := v.GetString("minio-bucket")
		if endpoint == "" || bucket == "" {
			return nil, fmt.Errorf("minio-endpoint and minio-bucket are required for the minio flavor")
		}
		client, err := miniogo.New(endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(v.GetString("minio-access-key"), v.GetString("minio-secret-key"), ""),
			Secure: v.GetBool("minio-secure"),
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		inner := minioblob.NewStore(client, bucket, v.GetString("minio-prefix"))
		return blobstore.NewRetryingStore(inner, urldex.DefaultRetryPolicy), nil

	default:
		return nil, fmt.Errorf("unknown store flavor %q", cfg.Flavor)
	}
}
