package database

import (
	"fmt"
	"time"

	"sbr_monitor/config"
	"sbr_monitor/logger"
	"sbr_monitor/models"

	"gorm.io/gorm"
)

// Migration is a row of the migration table
type Migration struct {
	ID        uint   `gorm:"primaryKey"`
	Version   string `gorm:"unique;not null;size:32"`
	Name      string `gorm:"not null"`
	AppliedAt time.Time
}

// Step is a versioned schema change. Versions sort lexically (YYYYMMDD_HHMMSS).
type Step struct {
	Version string
	Name    string
	Up      func(tx *gorm.DB) error
}

// MigrationStatus pairs a step with whether it has been applied
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Steps is the schema history of the local store, oldest first
var Steps = []Step{
	{
		Version: "20250110_090000",
		Name:    "create measurements",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Measurement{})
		},
	},
	{
		Version: "20250110_090100",
		Name:    "create sync settings",
		Up: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&models.SyncSettings{}); err != nil {
				return err
			}
			// sync starts disabled: one row with an empty identifier
			return tx.FirstOrCreate(&models.SyncSettings{}, models.SyncSettings{ID: settingsRowID}).Error
		},
	},
	{
		Version: "20250302_140000",
		Name:    "widen measurement id",
		Up: func(tx *gorm.DB) error {
			// sqlite does not enforce varchar lengths
			if tx.Dialector.Name() == "sqlite" {
				return nil
			}
			return tx.Migrator().AlterColumn(&models.Measurement{}, "ID")
		},
	},
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db    *gorm.DB
	table string
	steps []Step
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *gorm.DB, cfg *config.Config) *MigrationRunner {
	table := cfg.Migration.MigrationTable
	if table == "" {
		table = "schema_migrations"
	}
	return &MigrationRunner{
		db:    db,
		table: table,
		steps: Steps,
	}
}

// InitializeMigrationTable creates the migration table if it doesn't exist
func (mr *MigrationRunner) InitializeMigrationTable() error {
	return mr.db.Table(mr.table).AutoMigrate(&Migration{})
}

// GetAppliedMigrations returns all applied migrations from the database
func (mr *MigrationRunner) GetAppliedMigrations() ([]Migration, error) {
	if err := mr.InitializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	var applied []Migration
	if err := mr.db.Table(mr.table).Order("version ASC").Find(&applied).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return applied, nil
}

func (mr *MigrationRunner) appliedVersions() (map[string]bool, error) {
	applied, err := mr.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	versions := make(map[string]bool, len(applied))
	for _, m := range applied {
		versions[m.Version] = true
	}
	return versions, nil
}

// GetPendingMigrations returns steps that haven't been applied yet
func (mr *MigrationRunner) GetPendingMigrations() ([]Step, error) {
	applied, err := mr.appliedVersions()
	if err != nil {
		return nil, err
	}

	var pending []Step
	for _, step := range mr.steps {
		if !applied[step.Version] {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// RunMigrations executes all pending migrations
func (mr *MigrationRunner) RunMigrations() error {
	pending, err := mr.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if len(pending) == 0 {
		logger.Debugf("No pending migrations to run\n")
		return nil
	}

	logger.Printf("Running %d pending migration(s)...\n", len(pending))

	for _, step := range pending {
		if err := mr.runStep(step); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", step.Version, err)
		}
	}

	logger.Println("All migrations completed successfully")
	return nil
}

func (mr *MigrationRunner) runStep(step Step) error {
	logger.Printf("Running migration: %s - %s\n", step.Version, step.Name)

	return mr.db.Transaction(func(tx *gorm.DB) error {
		if err := step.Up(tx); err != nil {
			return err
		}
		record := Migration{
			Version:   step.Version,
			Name:      step.Name,
			AppliedAt: time.Now(),
		}
		if err := tx.Table(mr.table).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// GetMigrationStatus returns the status of all migrations
func (mr *MigrationRunner) GetMigrationStatus() ([]MigrationStatus, error) {
	applied, err := mr.appliedVersions()
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(mr.steps))
	for _, step := range mr.steps {
		status = append(status, MigrationStatus{
			Version: step.Version,
			Name:    step.Name,
			Applied: applied[step.Version],
		})
	}
	return status, nil
}
