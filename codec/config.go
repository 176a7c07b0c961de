package codec

import (
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// Defaults for Config.
const (
	DefaultThreshold            = 10 * 1024
	DefaultMinSavings           = 0.2
	DefaultMaxDecompressedBytes = 50 * 1024 * 1024
	DefaultChunkSize            = 32 * 1024
	DefaultLevel                = gzip.DefaultCompression
)

// Config tunes encoding and the decode ceiling.
type Config struct {
	// Threshold is the JSON size in bytes below which specs stay raw.
	// Default: 10 KiB
	Threshold int `yaml:"threshold"`

	// MinSavings is the fraction the wire form must save over the JSON for
	// compression to be kept. Default: 0.2
	MinSavings float64 `yaml:"min_savings"`

	// MaxDecompressedBytes caps inflated output. Default: 50 MiB
	MaxDecompressedBytes int64 `yaml:"max_decompressed_bytes"`

	// ChunkSize is the inflate read size. The limit is checked after every
	// chunk. Default: 32 KiB
	ChunkSize int `yaml:"chunk_size"`

	// Level is the gzip level. Zero selects gzip.DefaultCompression.
	Level int `yaml:"level"`
}

// DefaultConfig returns the default codec configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:            DefaultThreshold,
		MinSavings:           DefaultMinSavings,
		MaxDecompressedBytes: DefaultMaxDecompressedBytes,
		ChunkSize:            DefaultChunkSize,
		Level:                DefaultLevel,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("%w: threshold must not be negative, got %d", ErrInvalidConfig, c.Threshold)
	}
	if c.MinSavings < 0 || c.MinSavings >= 1 {
		return fmt.Errorf("%w: min savings must be in [0, 1), got %f", ErrInvalidConfig, c.MinSavings)
	}
	if c.MaxDecompressedBytes < 0 {
		return fmt.Errorf("%w: max decompressed bytes must not be negative, got %d", ErrInvalidConfig, c.MaxDecompressedBytes)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size must not be negative, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.Level < gzip.HuffmanOnly || c.Level > gzip.BestCompression {
		return fmt.Errorf("%w: gzip level out of range, got %d", ErrInvalidConfig, c.Level)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MinSavings == 0 {
		c.MinSavings = DefaultMinSavings
	}
	if c.MaxDecompressedBytes == 0 {
		c.MaxDecompressedBytes = DefaultMaxDecompressedBytes
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Level == 0 {
		c.Level = DefaultLevel
	}
	return c
}
