package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every variable Load consults so host environments cannot
// bleed into assertions. t.Setenv restores the originals on cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"FRAGMENTCORE_CONFIG",
		"FRAGMENTCORE_STORAGE_DRIVER",
		"FRAGMENTCORE_SQLITE_PATH",
		"FRAGMENTCORE_POSTGRES_DSN",
		"FRAGMENTCORE_BLOB_DRIVER",
		"FRAGMENTCORE_BLOB_FS_ROOT",
		"FRAGMENTCORE_BLOB_S3_BUCKET",
		"FRAGMENTCORE_BLOB_S3_ENDPOINT",
		"FRAGMENTCORE_BLOB_S3_REGION",
		"FRAGMENTCORE_BLOB_S3_PATH_STYLE",
		"FRAGMENTCORE_HTTP_ADDR",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fragmentd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != DefaultSQLitePath {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.Dir != DefaultBlobDir {
		t.Fatalf("unexpected blob defaults: %+v", cfg.Blob)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if !cfg.Telemetry.Expvar || !cfg.Telemetry.Prometheus || cfg.Telemetry.TracePath != "" {
		t.Fatalf("unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != "" {
		t.Fatalf("expected no file loaded, got %q", loaded)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
storage:
  driver: memory
http:
  addr: ":9999"
telemetry:
  expvar: false
`)
	t.Setenv("FRAGMENTCORE_CONFIG", path)

	cfg, loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != path {
		t.Fatalf("expected loaded path %q, got %q", path, loaded)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected file storage driver, got %+v", cfg.Storage)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("expected file http addr, got %+v", cfg.HTTP)
	}
	if cfg.Telemetry.Expvar {
		t.Fatalf("expected expvar disabled by file, got %+v", cfg.Telemetry)
	}
	// Fields the file does not mention keep their defaults.
	if cfg.Storage.SQLitePath != DefaultSQLitePath || cfg.Blob.Driver != "fs" || !cfg.Telemetry.Prometheus {
		t.Fatalf("expected untouched defaults, got %+v", cfg)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
storage:
  driver: sqlite
  sqlite_path: from-file.db
`)
	t.Setenv("FRAGMENTCORE_CONFIG", path)
	t.Setenv("FRAGMENTCORE_STORAGE_DRIVER", "memory")
	t.Setenv("FRAGMENTCORE_HTTP_ADDR", ":7070")
	t.Setenv("FRAGMENTCORE_BLOB_S3_PATH_STYLE", "true")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected env to win over file, got %+v", cfg.Storage)
	}
	if cfg.Storage.SQLitePath != "from-file.db" {
		t.Fatalf("expected file value where env is silent, got %+v", cfg.Storage)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("expected env http addr, got %+v", cfg.HTTP)
	}
	if !cfg.Blob.PathStyle {
		t.Fatalf("expected env bool override, got %+v", cfg.Blob)
	}
}

func TestLoadIgnoresUnparsableBoolEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("FRAGMENTCORE_BLOB_S3_PATH_STYLE", "sideways")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blob.PathStyle {
		t.Fatalf("expected unparsable bool to be ignored, got %+v", cfg.Blob)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("FRAGMENTCORE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, _, err := Load(); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error for explicit missing file, got %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "storage: [broken")
	t.Setenv("FRAGMENTCORE_CONFIG", path)
	if _, _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(*Config) {},
		},
		{
			name: "postgres with dsn passes",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
				c.Storage.PostgresDSN = "postgres://localhost/fragmentcore"
			},
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "requires a dsn",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "tape" },
			wantErr: "unknown storage driver",
		},
		{
			name: "s3 with bucket passes",
			mutate: func(c *Config) {
				c.Blob.Driver = "s3"
				c.Blob.Bucket = "exports"
			},
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Blob.Driver = "s3" },
			wantErr: "requires a bucket",
		},
		{
			name:    "unknown blob driver",
			mutate:  func(c *Config) { c.Blob.Driver = "punchcard" },
			wantErr: "unknown blob driver",
		},
		{
			name:    "empty addr",
			mutate:  func(c *Config) { c.HTTP.Addr = "" },
			wantErr: "http addr required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
