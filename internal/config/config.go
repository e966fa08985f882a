// Package config resolves fragmentd settings with an explicit priority
// order: compiled defaults, then an optional YAML file, then environment
// variables. Environment names match the ones the storage and blob
// factories read, so env-only deployments behave identically with or
// without a config file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file probed in the working directory when
// FRAGMENTCORE_CONFIG does not name one.
const DefaultConfigFile = "fragmentd.yaml"

// Defaults for the pieces a bare deployment needs.
const (
	DefaultHTTPAddr   = ":8090"
	DefaultSQLitePath = "fragmentcore.db"
	DefaultBlobDir    = "./blobdata"
)

// Config carries every setting the fragmentd binary wires at startup.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects the resolution log backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects the export artifact store.
type BlobConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	PathStyle bool   `yaml:"path_style"`
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig toggles the observability exporters.
type TelemetryConfig struct {
	Expvar     bool   `yaml:"expvar"`
	Prometheus bool   `yaml:"prometheus"`
	TracePath  string `yaml:"trace_path"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: DefaultSQLitePath,
		},
		Blob: BlobConfig{
			Driver: "fs",
			Dir:    DefaultBlobDir,
		},
		HTTP: HTTPConfig{
			Addr: DefaultHTTPAddr,
		},
		Telemetry: TelemetryConfig{
			Expvar:     true,
			Prometheus: true,
		},
	}
}

// Load resolves the effective configuration. It returns the config and the
// path of the file it loaded, empty when only defaults and environment
// variables applied. A file named by FRAGMENTCORE_CONFIG must exist; the
// default file is optional.
func Load() (Config, string, error) {
	cfg := Default()

	path, required := configPath()
	loaded := ""
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		switch {
		case err == nil:
			// Unmarshalling over the defaults keeps every field the file
			// does not mention.
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, "", fmt.Errorf("parse config %s: %w", path, err)
			}
			loaded = path
		case os.IsNotExist(err) && !required:
			// Probed default file is absent; defaults stand.
		default:
			return Config{}, "", fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, loaded, nil
}

// configPath picks the file to read and whether it has to exist.
func configPath() (string, bool) {
	if path := os.Getenv("FRAGMENTCORE_CONFIG"); path != "" {
		return path, true
	}
	return DefaultConfigFile, false
}

// applyEnv layers environment overrides on top of the file values. The
// names mirror the storage and blob factory variables.
func applyEnv(cfg *Config) {
	overrideString(&cfg.Storage.Driver, "FRAGMENTCORE_STORAGE_DRIVER")
	overrideString(&cfg.Storage.SQLitePath, "FRAGMENTCORE_SQLITE_PATH")
	overrideString(&cfg.Storage.PostgresDSN, "FRAGMENTCORE_POSTGRES_DSN")
	overrideString(&cfg.Blob.Driver, "FRAGMENTCORE_BLOB_DRIVER")
	overrideString(&cfg.Blob.Dir, "FRAGMENTCORE_BLOB_FS_ROOT")
	overrideString(&cfg.Blob.Bucket, "FRAGMENTCORE_BLOB_S3_BUCKET")
	overrideString(&cfg.Blob.Endpoint, "FRAGMENTCORE_BLOB_S3_ENDPOINT")
	overrideString(&cfg.Blob.Region, "FRAGMENTCORE_BLOB_S3_REGION")
	overrideBool(&cfg.Blob.PathStyle, "FRAGMENTCORE_BLOB_S3_PATH_STYLE")
	overrideString(&cfg.HTTP.Addr, "FRAGMENTCORE_HTTP_ADDR")
}

func overrideString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func overrideBool(target *bool, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

// Validate rejects configurations the binary could not start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: storage driver postgres requires a dsn")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %s", c.Storage.Driver)
	}

	switch c.Blob.Driver {
	case "memory", "fs":
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("config: blob driver s3 requires a bucket")
		}
	default:
		return fmt.Errorf("config: unknown blob driver %s", c.Blob.Driver)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("config: http addr required")
	}
	return nil
}
