// Package config loads s3user-agg settings from defaults, an optional YAML
// file and S3USERAGG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file base name, searched as s3user-agg.yaml.
const FileName = "s3user-agg"

// EnvPrefix prefixes environment overrides, e.g. S3USERAGG_SOURCE_BUCKET.
const EnvPrefix = "S3USERAGG"

// Config holds all application configuration.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Files   FilesConfig   `mapstructure:"files"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig locates the user objects.
type SourceConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"` // MinIO or other S3-compatible server
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
	PageSize  int32  `mapstructure:"page_size"`

	// Inventory lists S3 Inventory report files to read the listing from
	// instead of calling ListObjectsV2.
	Inventory       []string `mapstructure:"inventory"`
	InventorySchema string   `mapstructure:"inventory_schema"`
}

// FilesConfig classifies and parses objects.
type FilesConfig struct {
	ImageExtensions []string `mapstructure:"image_extensions"`
	InfoExtensions  []string `mapstructure:"info_extensions"`
	CSVDelimiter    string   `mapstructure:"csv_delimiter"`
}

// FetchConfig bounds the delta fetch.
type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// OutputConfig shapes aggregated output.
type OutputConfig struct {
	Columns   []string `mapstructure:"columns"`
	Key       string   `mapstructure:"key"` // upload destination for `export`
	Format    string   `mapstructure:"format"`
	Delimiter string   `mapstructure:"delimiter"`
	Empty     string   `mapstructure:"empty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Human bool   `mapstructure:"human"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Bucket:          "datalake",
			Prefix:          "source_data/",
			Region:          "us-east-1",
			InventorySchema: "Bucket, Key, Size, LastModifiedDate",
		},
		Files: FilesConfig{
			ImageExtensions: []string{".png"},
			InfoExtensions:  []string{".csv"},
			CSVDelimiter:    ", ",
		},
		Fetch: FetchConfig{
			Concurrency: 16,
			Timeout:     30 * time.Second,
		},
		Output: OutputConfig{
			Columns:   []string{"user_id", "first_name", "last_name", "birthts", "img_path"},
			Key:       "processed_data/output.csv",
			Format:    "csv",
			Delimiter: ", ",
			Empty:     "ø",
		},
		Logging: LoggingConfig{
			Level: "info",
			Human: true,
		},
	}
}

// defaultConfigPath returns the per-user config directory.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, FileName)
}

// Load reads configuration. An explicit path must exist; without one the
// working directory and the user config directory are searched and a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := defaultConfigPath(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("source.bucket", d.Source.Bucket)
	v.SetDefault("source.prefix", d.Source.Prefix)
	v.SetDefault("source.endpoint", d.Source.Endpoint)
	v.SetDefault("source.region", d.Source.Region)
	v.SetDefault("source.access_key", d.Source.AccessKey)
	v.SetDefault("source.secret_key", d.Source.SecretKey)
	v.SetDefault("source.path_style", d.Source.PathStyle)
	v.SetDefault("source.page_size", d.Source.PageSize)
	v.SetDefault("source.inventory", d.Source.Inventory)
	v.SetDefault("source.inventory_schema", d.Source.InventorySchema)

	v.SetDefault("files.image_extensions", d.Files.ImageExtensions)
	v.SetDefault("files.info_extensions", d.Files.InfoExtensions)
	v.SetDefault("files.csv_delimiter", d.Files.CSVDelimiter)

	v.SetDefault("fetch.concurrency", d.Fetch.Concurrency)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)

	v.SetDefault("output.columns", d.Output.Columns)
	v.SetDefault("output.key", d.Output.Key)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.delimiter", d.Output.Delimiter)
	v.SetDefault("output.empty", d.Output.Empty)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.human", d.Logging.Human)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Source.Bucket == "" {
		return errors.New("source.bucket is required")
	}
	if c.Source.Prefix != "" && !strings.HasSuffix(c.Source.Prefix, "/") {
		return fmt.Errorf("source.prefix %q must end with /", c.Source.Prefix)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative, got %s", c.Fetch.Timeout)
	}
	if len(c.Files.InfoExtensions) == 0 {
		return errors.New("files.info_extensions must not be empty")
	}
	return nil
}
