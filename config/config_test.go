package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLite.Path != "sbr_monitor.db" {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Sync.Interval() != time.Minute {
		t.Fatalf("interval = %v", cfg.Sync.Interval())
	}
	if cfg.Sync.CreateRetry.MaxAttempts != 3 {
		t.Fatalf("create retry attempts = %d", cfg.Sync.CreateRetry.MaxAttempts)
	}
	if cfg.Thresholds.PHMin != 6.5 || cfg.Thresholds.PHMax != 8.5 || cfg.Thresholds.NH4Max != 5 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Thresholds)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  sqlite:
    path: plant.db
sync:
  provider: http
  interval_seconds: 30
  http:
    base_url: https://jsonbin.example/v3
    document_path: /b/{id}
    write_method: PUT
    envelope_field: record
    id_field: metadata.id
thresholds:
  nh4_max: 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.SQLite.Path != "plant.db" {
		t.Fatalf("sqlite path = %q", cfg.Database.SQLite.Path)
	}
	if cfg.Sync.IntervalSeconds != 30 || cfg.Sync.HTTP.WriteMethod != "PUT" || cfg.Sync.HTTP.IDField != "metadata.id" {
		t.Fatalf("unexpected sync config: %+v", cfg.Sync)
	}
	if cfg.Thresholds.NH4Max != 4 || cfg.Thresholds.PHMax != 8.5 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Thresholds)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SBR_SQLITE_PATH", "/tmp/other.db")
	t.Setenv("SBR_SYNC_API_KEY", "secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.SQLite.Path != "/tmp/other.db" {
		t.Fatalf("sqlite path = %q", cfg.Database.SQLite.Path)
	}
	if cfg.Sync.HTTP.APIKey != "secret" {
		t.Fatalf("api key = %q", cfg.Sync.HTTP.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "database:\n  driver: oracle\n"},
		{"mysql without host", "database:\n  driver: mysql\n  mysql:\n    user: u\n    dbname: d\n"},
		{"unknown provider", "sync:\n  provider: ftp\n"},
		{"s3 without bucket", "sync:\n  provider: s3\n"},
		{"document path without id", "sync:\n  http:\n    document_path: /docs\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "database: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.PostgreSQL = PostgresConfig{Host: "db", Port: 5432, User: "sbr", Password: "pw", DBName: "plant", SSLMode: "disable", TimeZone: "UTC"}
	want := "host=db port=5432 user=sbr password=pw dbname=plant sslmode=disable TimeZone=UTC"
	if got := cfg.GetDSN(); got != want {
		t.Fatalf("GetDSN = %q, want %q", got, want)
	}
}
