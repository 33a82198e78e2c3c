package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when neither a path nor SBR_CONFIG is given
const DefaultConfigPath = "config.yaml"

// DatabaseConfig holds all database configuration
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"`
	MySQL          MySQLConfig    `yaml:"mysql"`
	PostgreSQL     PostgresConfig `yaml:"postgres"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	ConnectionPool PoolConfig     `yaml:"connection_pool"`
}

// MySQLConfig holds MySQL specific configuration
type MySQLConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`
}

// PostgresConfig holds PostgreSQL specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// SQLiteConfig holds SQLite specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxIdleConns    int `yaml:"max_idle_conns"`
	MaxOpenConns    int `yaml:"max_open_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// MigrationConfig holds migration specific configuration
type MigrationConfig struct {
	AutoMigrate    bool   `yaml:"auto_migrate"`
	MigrationTable string `yaml:"migration_table"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	LogFile      string `yaml:"log_file"`
	LogToConsole bool   `yaml:"log_to_console"`
	LogLevel     string `yaml:"log_level"`
}

// RetryConfig bounds the backoff used when a remote document is created
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier"`
}

// InitialBackoff returns the first retry delay
func (r RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffMs) * time.Millisecond
}

// HTTPProviderConfig describes a hosted JSON document service.
// DocumentPath must contain the {id} placeholder.
type HTTPProviderConfig struct {
	BaseURL       string            `yaml:"base_url"`
	CreatePath    string            `yaml:"create_path"`
	DocumentPath  string            `yaml:"document_path"`
	WriteMethod   string            `yaml:"write_method"`
	EnvelopeField string            `yaml:"envelope_field"`
	IDField       string            `yaml:"id_field"`
	IDHeader      string            `yaml:"id_header"`
	APIKey        string            `yaml:"api_key"`
	APIKeyHeader  string            `yaml:"api_key_header"`
	Headers       map[string]string `yaml:"headers"`
}

// S3ProviderConfig stores remote documents as objects in a bucket
type S3ProviderConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// SyncConfig holds remote synchronization configuration
type SyncConfig struct {
	Provider              string             `yaml:"provider"`
	IntervalSeconds       int                `yaml:"interval_seconds"`
	StatusResetSeconds    int                `yaml:"status_reset_seconds"`
	RequestTimeoutSeconds int                `yaml:"request_timeout_seconds"`
	ProbeAddress          string             `yaml:"probe_address"`
	CreateRetry           RetryConfig        `yaml:"create_retry"`
	HTTP                  HTTPProviderConfig `yaml:"http"`
	S3                    S3ProviderConfig   `yaml:"s3"`
}

// Interval returns the background pull period
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// StatusReset returns how long a finished status stays visible
func (s SyncConfig) StatusReset() time.Duration {
	return time.Duration(s.StatusResetSeconds) * time.Second
}

// RequestTimeout returns the per-request transport timeout
func (s SyncConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ThresholdConfig holds the admissible bands used for alerting
type ThresholdConfig struct {
	PHMin  float64 `yaml:"ph_min"`
	PHMax  float64 `yaml:"ph_max"`
	NH4Max float64 `yaml:"nh4_max"`
}

// ServerConfig holds the local HTTP API configuration
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Config holds the complete application configuration
type Config struct {
	Database   DatabaseConfig  `yaml:"database"`
	Migration  MigrationConfig `yaml:"migration"`
	Logging    LoggingConfig   `yaml:"logging"`
	Sync       SyncConfig      `yaml:"sync"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Server     ServerConfig    `yaml:"server"`
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Migration.AutoMigrate = true
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from the specified YAML file.
// A missing file yields defaults; environment variables (and a .env file)
// override selected keys.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("SBR_CONFIG")
	}
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	cfg := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.Database.Driver, "SBR_DB_DRIVER")
	setString(&c.Database.SQLite.Path, "SBR_SQLITE_PATH")
	setString(&c.Sync.Provider, "SBR_SYNC_PROVIDER")
	setString(&c.Sync.HTTP.BaseURL, "SBR_SYNC_BASE_URL")
	setString(&c.Sync.HTTP.APIKey, "SBR_SYNC_API_KEY")
	setString(&c.Sync.S3.Bucket, "SBR_S3_BUCKET")
	setString(&c.Logging.LogLevel, "SBR_LOG_LEVEL")
	setString(&c.Server.Listen, "SBR_LISTEN")
}

func (c *Config) applyDefaults() {
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "sbr_monitor.db"
	}
	if c.Migration.MigrationTable == "" {
		c.Migration.MigrationTable = "schema_migrations"
	}
	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "sbr_monitor.log"
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}

	s := &c.Sync
	if s.Provider == "" {
		s.Provider = "http"
	}
	if s.IntervalSeconds == 0 {
		s.IntervalSeconds = 60
	}
	if s.StatusResetSeconds == 0 {
		s.StatusResetSeconds = 3
	}
	if s.RequestTimeoutSeconds <= 0 {
		s.RequestTimeoutSeconds = 15
	}
	if s.CreateRetry.MaxAttempts <= 0 {
		s.CreateRetry.MaxAttempts = 3
	}
	if s.CreateRetry.InitialBackoffMs <= 0 {
		s.CreateRetry.InitialBackoffMs = 500
	}
	if s.CreateRetry.Multiplier <= 0 {
		s.CreateRetry.Multiplier = 2
	}
	if s.HTTP.BaseURL == "" {
		s.HTTP.BaseURL = "https://api.npoint.io"
	}
	if s.HTTP.CreatePath == "" {
		s.HTTP.CreatePath = "/"
	}
	if s.HTTP.DocumentPath == "" {
		s.HTTP.DocumentPath = "/{id}"
	}
	if s.HTTP.WriteMethod == "" {
		s.HTTP.WriteMethod = "POST"
	}
	if s.HTTP.IDField == "" && s.HTTP.IDHeader == "" {
		s.HTTP.IDField = "id"
	}
	if s.S3.Region == "" {
		s.S3.Region = "us-east-1"
	}

	if c.Thresholds.PHMin == 0 && c.Thresholds.PHMax == 0 {
		c.Thresholds.PHMin = 6.5
		c.Thresholds.PHMax = 8.5
	}
	if c.Thresholds.NH4Max == 0 {
		c.Thresholds.NH4Max = 5.0
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8088"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql host is required")
		}
		if c.Database.MySQL.User == "" {
			return fmt.Errorf("mysql user is required")
		}
		if c.Database.MySQL.DBName == "" {
			return fmt.Errorf("mysql database name is required")
		}
	case "postgres":
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Database.PostgreSQL.User == "" {
			return fmt.Errorf("postgres user is required")
		}
		if c.Database.PostgreSQL.DBName == "" {
			return fmt.Errorf("postgres database name is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Sync.Provider {
	case "http":
		if !strings.Contains(c.Sync.HTTP.DocumentPath, "{id}") {
			return fmt.Errorf("sync.http.document_path must contain {id}")
		}
	case "s3":
		if c.Sync.S3.Bucket == "" {
			return fmt.Errorf("sync.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unsupported sync provider: %s", c.Sync.Provider)
	}

	if c.Sync.IntervalSeconds < 0 {
		return fmt.Errorf("sync.interval_seconds must not be negative")
	}
	if c.Thresholds.PHMin > c.Thresholds.PHMax {
		return fmt.Errorf("thresholds.ph_min must not exceed thresholds.ph_max")
	}

	return nil
}

// GetDSN returns the database connection string based on the configured driver
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "mysql":
		mysql := c.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
			mysql.User, mysql.Password, mysql.Host, mysql.Port, mysql.DBName,
			mysql.Charset, mysql.ParseTime, mysql.Loc)
		return dsn
	case "postgres":
		pg := c.Database.PostgreSQL
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode, pg.TimeZone)
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}
