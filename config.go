package chronos

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines store-wide defaults and snapshot settings. Fields left
// zero fall back to the values of DefaultConfig.
type Config struct {
	// Series holds the defaults applied to newly created series.
	Series SeriesConfig `yaml:"series"`

	// Snapshot configures snapshot persistence.
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// SeriesConfig groups per-series defaults.
type SeriesConfig struct {
	// Retention bounds how far behind its latest sample a series keeps
	// data. 0 keeps everything.
	Retention Duration `yaml:"retention"`

	// DedupeInterval rejects samples closer than this to a series'
	// latest timestamp. 0 disables deduplication.
	DedupeInterval Duration `yaml:"dedupe_interval"`

	// DuplicatePolicy resolves writes to an existing timestamp.
	// One of block, first, last, min, max, sum. Default: last.
	DuplicatePolicy string `yaml:"duplicate_policy"`

	// Encoding selects the sealed chunk representation, compressed or
	// uncompressed. Default: compressed.
	Encoding string `yaml:"encoding"`

	// ChunkSize is the target chunk payload size in bytes.
	// Default: 4096.
	ChunkSize int `yaml:"chunk_size"`

	// SignificantDigits rounds ingested values to this many significant
	// decimal digits. 0 disables rounding.
	SignificantDigits uint8 `yaml:"significant_digits"`
}

// SnapshotConfig groups snapshot persistence settings.
type SnapshotConfig struct {
	// Compress applies Snappy compression to snapshot payloads.
	// Default: true.
	Compress bool `yaml:"compress"`

	// Encryption configures encryption at rest for snapshots.
	// Nil or disabled stores snapshots in the clear.
	Encryption *EncryptionConfig `yaml:"encryption"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Series: SeriesConfig{
			DuplicatePolicy: DuplicatePolicyLast.String(),
			Encoding:        EncodingCompressed.String(),
			ChunkSize:       DefaultChunkSize,
		},
		Snapshot: SnapshotConfig{
			Compress: true,
		},
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields
// from DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Series.ChunkSize != 0 {
		if err := validateChunkSize(c.Series.ChunkSize); err != nil {
			return err
		}
	}
	if c.Series.DuplicatePolicy != "" {
		if _, err := ParseDuplicatePolicy(c.Series.DuplicatePolicy); err != nil {
			return err
		}
	}
	if c.Series.Encoding != "" {
		if _, err := ParseEncoding(c.Series.Encoding); err != nil {
			return err
		}
	}
	return nil
}

// seriesOptions maps the configured defaults onto SeriesOptions.
func (c *Config) seriesOptions() (SeriesOptions, error) {
	opts := SeriesOptions{
		Retention:         c.Series.Retention.Duration(),
		DedupeInterval:    c.Series.DedupeInterval.Duration(),
		ChunkSize:         c.Series.ChunkSize,
		SignificantDigits: c.Series.SignificantDigits,
	}
	if c.Series.DuplicatePolicy != "" {
		policy, err := ParseDuplicatePolicy(c.Series.DuplicatePolicy)
		if err != nil {
			return opts, err
		}
		opts.DuplicatePolicy = policy
	}
	if c.Series.Encoding != "" {
		enc, err := ParseEncoding(c.Series.Encoding)
		if err != nil {
			return opts, err
		}
		opts.Encoding = enc
	}
	return opts, nil
}

// Duration wraps time.Duration so YAML configs can use strings like
// "36h" or "15m".
type Duration time.Duration

// Duration returns the wrapped value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
