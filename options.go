package urldex

// StoreFlavor selects the backend of the columnar URL lake.
type StoreFlavor string

const (
	// StoreLocal keeps parquet files on the local filesystem.
	StoreLocal StoreFlavor = "local"
	// StoreS3 reads and writes parquet files through AWS S3.
	StoreS3 StoreFlavor = "s3"
	// StoreMinIO reads and writes parquet files through a MinIO or other
	// S3-compatible endpoint.
	StoreMinIO StoreFlavor = "minio"
)

// Config holds the recognized options of the engine. Index artifacts are
// always local; only the columnar store may live on object storage.
type Config struct {
	// BasePath is the root under which urls/, index/ and registry/ live.
	BasePath string

	// PartitionBufferSize is the per-partition buffer threshold in bytes
	// before a flush finalizes the next part file. 0 means immediate writes.
	PartitionBufferSize int64

	// GlobalBufferLimit caps total buffered bytes across all partitions.
	// When exceeded, the largest buffer is force-flushed. 0 disables the cap.
	GlobalBufferLimit int64

	// CompressionLevel is the zstd level for the compressed index artifacts.
	// Parquet part files use the zstd codec's default level; this setting
	// does not apply to them.
	CompressionLevel int

	// PostingsShards is the shard count of the postings index. Must be a
	// power of two.
	PostingsShards int

	// MaxLimit caps the page size of URL queries; larger limits are clamped.
	MaxLimit int

	// VersionRetentionCount is how many published versions gc keeps.
	VersionRetentionCount int

	// Flavor selects the columnar store backend.
	Flavor StoreFlavor
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		BasePath:              "./data",
		PartitionBufferSize:   128 << 20,
		GlobalBufferLimit:     1 << 30,
		CompressionLevel:      6,
		PostingsShards:        1024,
		MaxLimit:              10000,
		VersionRetentionCount: 5,
		Flavor:                StoreLocal,
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.BasePath == "" {
		return ErrInputMalformed
	}
	if c.PostingsShards <= 0 || c.PostingsShards&(c.PostingsShards-1) != 0 {
		return ErrInputMalformed
	}
	if c.MaxLimit <= 0 {
		return ErrInputMalformed
	}
	return nil
}
