package database

import (
	"context"
	"fmt"
	"sync"

	"sbr_monitor/models"
)

// MemoryStore is a non-durable store with the same semantics as Store.
// Used for tests and dry runs.
type MemoryStore struct {
	mu       sync.Mutex
	history  []models.Measurement
	settings models.SyncSettings
}

// NewMemoryStore creates a MemoryStore holding a copy of history
func NewMemoryStore(history []models.Measurement) *MemoryStore {
	s := &MemoryStore{}
	s.history = cloneSorted(history)
	return s
}

func cloneSorted(history []models.Measurement) []models.Measurement {
	out := make([]models.Measurement, len(history))
	copy(out, history)
	models.SortHistory(out)
	return out
}

// GetHistory returns a copy of the history, newest first
func (s *MemoryStore) GetHistory(ctx context.Context) ([]models.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSorted(s.history), nil
}

// SetHistory replaces the history
func (s *MemoryStore) SetHistory(ctx context.Context, history []models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = cloneSorted(history)
	return nil
}

// UpdateHistory applies fn atomically
func (s *MemoryStore) UpdateHistory(ctx context.Context, fn func([]models.Measurement) ([]models.Measurement, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed, err := fn(cloneSorted(s.history))
	if err != nil || !changed {
		return err
	}
	s.history = cloneSorted(next)
	return nil
}

// AddMeasurement appends m, rejecting duplicate ids like the SQL primary key does
func (s *MemoryStore) AddMeasurement(ctx context.Context, m models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.history {
		if existing.ID == m.ID {
			return fmt.Errorf("failed to save measurement %s: duplicate id", m.ID)
		}
	}
	s.history = cloneSorted(append(s.history, m))
	return nil
}

// DeleteMeasurement removes the record with id
func (s *MemoryStore) DeleteMeasurement(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.history {
		if m.ID == id {
			s.history = append(s.history[:i:i], s.history[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrMeasurementNotFound, id)
}

// GetSettings returns the current settings
func (s *MemoryStore) GetSettings(ctx context.Context) (models.SyncSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// SaveSettings replaces the settings
func (s *MemoryStore) SaveSettings(ctx context.Context, settings models.SyncSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.ID = settingsRowID
	s.settings = settings
	return nil
}

// UpdateSettings applies fn atomically
func (s *MemoryStore) UpdateSettings(ctx context.Context, fn func(models.SyncSettings) (models.SyncSettings, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.settings)
	if err != nil {
		return err
	}
	next.ID = settingsRowID
	s.settings = next
	return nil
}
