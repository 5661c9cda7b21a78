package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	body := `
source:
  bucket: users
  prefix: raw/
  endpoint: http://minio:9000
  path_style: true
files:
  image_extensions: [".png", ".jpg"]
  info_extensions: [".csv", ".json"]
fetch:
  concurrency: 4
  timeout: 5s
output:
  columns: [user_id, birthts]
  format: parquet
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Bucket != "users" || cfg.Source.Prefix != "raw/" || !cfg.Source.PathStyle {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Source.Endpoint != "http://minio:9000" {
		t.Errorf("Endpoint = %q", cfg.Source.Endpoint)
	}
	if !reflect.DeepEqual(cfg.Files.ImageExtensions, []string{".png", ".jpg"}) {
		t.Errorf("ImageExtensions = %v", cfg.Files.ImageExtensions)
	}
	if cfg.Fetch.Concurrency != 4 || cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Output.Format != "parquet" || !reflect.DeepEqual(cfg.Output.Columns, []string{"user_id", "birthts"}) {
		t.Errorf("Output = %+v", cfg.Output)
	}
	// Unset keys keep their defaults.
	if cfg.Files.CSVDelimiter != ", " || cfg.Output.Key != "processed_data/output.csv" {
		t.Errorf("defaults lost: %+v %+v", cfg.Files, cfg.Output)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("S3USERAGG_SOURCE_BUCKET", "from-env")
	t.Setenv("S3USERAGG_FETCH_CONCURRENCY", "3")
	t.Setenv("S3USERAGG_FETCH_TIMEOUT", "250ms")
	t.Setenv("S3USERAGG_LOGGING_HUMAN", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Bucket != "from-env" {
		t.Errorf("Bucket = %q, want from-env", cfg.Source.Bucket)
	}
	if cfg.Fetch.Concurrency != 3 || cfg.Fetch.Timeout != 250*time.Millisecond {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Logging.Human {
		t.Error("Logging.Human should be overridden to false")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no bucket", func(c *Config) { c.Source.Bucket = "" }, "source.bucket"},
		{"prefix without slash", func(c *Config) { c.Source.Prefix = "source_data" }, "source.prefix"},
		{"negative timeout", func(c *Config) { c.Fetch.Timeout = -time.Second }, "fetch.timeout"},
		{"no info extensions", func(c *Config) { c.Files.InfoExtensions = nil }, "files.info_extensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}
