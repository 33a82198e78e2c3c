package database

import (
	"fmt"
	"time"

	"sbr_monitor/config"
	"sbr_monitor/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a database connection based on the provided configuration
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	dsn := cfg.GetDSN()
	switch cfg.Database.Driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.Logging.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	pool := cfg.Database.ConnectionPool
	if cfg.Database.Driver == "sqlite" && pool.MaxOpenConns <= 0 {
		// one writer at a time, otherwise sqlite reports "database is locked"
		pool.MaxOpenConns = 1
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db

	return db, nil
}

// Open connects and, when migration.auto_migrate is set, applies pending migrations
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Migration.AutoMigrate {
		if err := NewMigrationRunner(db, cfg).RunMigrations(); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		return sqlDB.Close()
	}
	return nil
}

// GetDB returns the global database instance
func GetDB() *gorm.DB {
	return DB
}

// IsConnected checks if database is connected
func IsConnected() bool {
	if DB == nil {
		return false
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return false
	}

	return sqlDB.Ping() == nil
}

// GetDatabaseInfo returns information about the connected database and the
// measurement history it holds
func GetDatabaseInfo(cfg *config.Config) map[string]interface{} {
	info := make(map[string]interface{})
	info["driver"] = cfg.Database.Driver
	info["connected"] = IsConnected()

	switch cfg.Database.Driver {
	case "mysql":
		info["host"] = cfg.Database.MySQL.Host
		info["port"] = cfg.Database.MySQL.Port
		info["database"] = cfg.Database.MySQL.DBName
	case "postgres":
		info["host"] = cfg.Database.PostgreSQL.Host
		info["port"] = cfg.Database.PostgreSQL.Port
		info["database"] = cfg.Database.PostgreSQL.DBName
	case "sqlite":
		info["path"] = cfg.Database.SQLite.Path
	}

	if DB == nil || info["connected"] != true {
		return info
	}

	if sqlDB, err := DB.DB(); err == nil {
		stats := sqlDB.Stats()
		info["max_open_connections"] = stats.MaxOpenConnections
		info["open_connections"] = stats.OpenConnections
		info["in_use"] = stats.InUse
		info["idle"] = stats.Idle
	}

	if !DB.Migrator().HasTable(&models.Measurement{}) {
		return info
	}

	var count, alertCount int64
	DB.Model(&models.Measurement{}).Count(&count)
	DB.Model(&models.Measurement{}).Where("alerts <> ? AND alerts <> ?", "[]", "null").Count(&alertCount)
	info["measurements"] = count
	info["measurements_with_alerts"] = alertCount

	if count > 0 {
		var bounds struct {
			Earliest int64
			Latest   int64
		}
		DB.Model(&models.Measurement{}).Select("MIN(timestamp) AS earliest, MAX(timestamp) AS latest").Scan(&bounds)
		info["earliest"] = time.UnixMilli(bounds.Earliest).Format("2006-01-02 15:04")
		info["latest"] = time.UnixMilli(bounds.Latest).Format("2006-01-02 15:04")
	}

	return info
}
