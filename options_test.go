package urldex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base path", func(c *Config) { c.BasePath = "" }},
		{"zero shards", func(c *Config) { c.PostingsShards = 0 }},
		{"non power of two shards", func(c *Config) { c.PostingsShards = 1000 }},
		{"zero max limit", func(c *Config) { c.MaxLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := ErrNotFound
	corrupt := NewArtifactCorrupt("index/v1/domains.mphf", "bad magic", cause)
	assert.ErrorIs(t, corrupt, cause)
	assert.Contains(t, corrupt.Error(), "domains.mphf")

	transient := NewTransientIO("read", 3, cause)
	assert.ErrorIs(t, transient, cause)
	assert.Equal(t, 3, transient.Attempts)
}
