package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sbr_monitor/models"

	"gorm.io/gorm"
)

// ErrMeasurementNotFound is returned when deleting an id that is not stored
var ErrMeasurementNotFound = errors.New("measurement not found")

const (
	settingsRowID = 1
	insertBatch   = 500
)

// Store is the durable local store: the measurement history and the device's
// sync settings. Whole-history rewrites and single-record mutations are
// serialized so a merge can never interleave with an add or delete.
type Store struct {
	db *gorm.DB
	mu sync.Mutex

	settingsMu sync.Mutex
}

// NewStore wraps an open database whose schema has been migrated
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetHistory returns all stored measurements, newest first
func (s *Store) GetHistory(ctx context.Context) ([]models.Measurement, error) {
	return loadHistory(s.db.WithContext(ctx))
}

func loadHistory(db *gorm.DB) ([]models.Measurement, error) {
	history := []models.Measurement{}
	if err := db.Order("timestamp DESC").Order("id ASC").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return history, nil
}

// SetHistory replaces the entire stored collection
func (s *Store) SetHistory(ctx context.Context, history []models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceHistory(tx, history)
	})
}

// UpdateHistory reads the history, passes it to fn and, if fn reports a
// change, replaces the stored history with fn's result in one transaction.
func (s *Store) UpdateHistory(ctx context.Context, fn func([]models.Measurement) ([]models.Measurement, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadHistory(tx)
		if err != nil {
			return err
		}
		next, changed, err := fn(current)
		if err != nil || !changed {
			return err
		}
		return replaceHistory(tx, next)
	})
}

func replaceHistory(tx *gorm.DB, history []models.Measurement) error {
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Measurement{}).Error; err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}
	rows := make([]models.Measurement, len(history))
	copy(rows, history)
	if err := tx.CreateInBatches(rows, insertBatch).Error; err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// AddMeasurement stores one new measurement
func (s *Store) AddMeasurement(ctx context.Context, m models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to save measurement %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMeasurement removes the measurement with the given id
func (s *Store) DeleteMeasurement(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Measurement{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete measurement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrMeasurementNotFound, id)
	}
	return nil
}

// GetSettings returns the device's sync settings, creating the empty
// (sync disabled) row on first use
func (s *Store) GetSettings(ctx context.Context) (models.SyncSettings, error) {
	var settings models.SyncSettings
	err := s.db.WithContext(ctx).
		FirstOrCreate(&settings, models.SyncSettings{ID: settingsRowID}).Error
	if err != nil {
		return models.SyncSettings{}, fmt.Errorf("failed to load sync settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists the device's sync settings
func (s *Store) SaveSettings(ctx context.Context, settings models.SyncSettings) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	return saveSettings(s.db.WithContext(ctx), settings)
}

func saveSettings(db *gorm.DB, settings models.SyncSettings) error {
	settings.ID = settingsRowID
	if err := db.Save(&settings).Error; err != nil {
		return fmt.Errorf("failed to save sync settings: %w", err)
	}
	return nil
}

// UpdateSettings reads the settings, passes them to fn and saves fn's result
// in one transaction. Nothing is written when fn fails.
func (s *Store) UpdateSettings(ctx context.Context, fn func(models.SyncSettings) (models.SyncSettings, error)) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.SyncSettings
		if err := tx.FirstOrCreate(&current, models.SyncSettings{ID: settingsRowID}).Error; err != nil {
			return fmt.Errorf("failed to load sync settings: %w", err)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		return saveSettings(tx, next)
	})
}
