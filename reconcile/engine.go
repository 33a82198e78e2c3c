// Package reconcile merges local and remote measurement histories and
// implements the push, pull and full sync operations.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sbr_monitor/logger"
	"sbr_monitor/models"
	"sbr_monitor/remote"
)

var (
	// ErrSyncDisabled is returned when no usable sync identifier is configured
	ErrSyncDisabled = errors.New("sync is not configured")
	// ErrNotConfirmed is returned when a destructive replace was not confirmed
	ErrNotConfirmed = errors.New("replace of local history not confirmed")
	// ErrHistoryChanged is returned when local history changed between the
	// replace confirmation and the write
	ErrHistoryChanged = errors.New("local history changed while confirming replace")
)

// LocalStore is the device's durable history and settings
type LocalStore interface {
	GetHistory(ctx context.Context) ([]models.Measurement, error)
	SetHistory(ctx context.Context, history []models.Measurement) error
	UpdateHistory(ctx context.Context, fn func([]models.Measurement) ([]models.Measurement, bool, error)) error
	AddMeasurement(ctx context.Context, m models.Measurement) error
	DeleteMeasurement(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (models.SyncSettings, error)
	SaveSettings(ctx context.Context, settings models.SyncSettings) error
	UpdateSettings(ctx context.Context, fn func(models.SyncSettings) (models.SyncSettings, error)) error
}

// ConfirmFunc is asked before local history is replaced by a remote copy
type ConfirmFunc func(localCount, remoteCount int) bool

// Engine runs sync operations between a LocalStore and a remote document
type Engine struct {
	store  LocalStore
	client remote.DocumentClient
	now    func() time.Time
}

// NewEngine creates an Engine
func NewEngine(store LocalStore, client remote.DocumentClient) *Engine {
	return &Engine{store: store, client: client, now: time.Now}
}

// Store returns the local store the engine reconciles into
func (e *Engine) Store() LocalStore {
	return e.store
}

// Client returns the remote document client
func (e *Engine) Client() remote.DocumentClient {
	return e.client
}

func checkSyncID(id string) error {
	if err := remote.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %w", ErrSyncDisabled, err)
	}
	return nil
}

// Push overwrites the remote document with history. On success the stored
// LastSync is advanced and the updated settings are returned.
func (e *Engine) Push(ctx context.Context, settings models.SyncSettings, history []models.Measurement) (models.SyncSettings, error) {
	if err := checkSyncID(settings.SyncID); err != nil {
		return settings, err
	}
	if err := e.client.WriteDocument(ctx, settings.SyncID, history); err != nil {
		return settings, fmt.Errorf("push to %s: %w", settings.SyncID, err)
	}

	updated, err := e.recordPush(ctx, settings)
	if err != nil {
		return updated, err
	}
	logger.Debugf("pushed %d measurement(s) to %s\n", len(history), settings.SyncID)
	return updated, nil
}

// recordPush stamps LastSync on the stored settings, unless the operator has
// switched to another identifier while the push was in flight.
func (e *Engine) recordPush(ctx context.Context, pushed models.SyncSettings) (models.SyncSettings, error) {
	now := e.now()
	stamped := pushed.WithLastSync(now)
	err := e.store.UpdateSettings(ctx, func(current models.SyncSettings) (models.SyncSettings, error) {
		if current.SyncID != pushed.SyncID {
			return current, nil
		}
		stamped = current.WithLastSync(now)
		return stamped, nil
	})
	return stamped, err
}

// Pull fetches the remote history without touching the local store
func (e *Engine) Pull(ctx context.Context, syncID string) ([]models.Measurement, error) {
	if err := checkSyncID(syncID); err != nil {
		return nil, err
	}
	history, err := e.client.ReadDocument(ctx, syncID)
	if err != nil {
		return nil, fmt.Errorf("pull from %s: %w", syncID, err)
	}
	return history, nil
}

// MergeLocal merges incoming into the local history and returns how many
// records were new. The store is only written when something was added.
func (e *Engine) MergeLocal(ctx context.Context, incoming []models.Measurement) (int, error) {
	var added int
	err := e.store.UpdateHistory(ctx, func(local []models.Measurement) ([]models.Measurement, bool, error) {
		var merged []models.Measurement
		merged, added = Merge(local, incoming)
		return merged, added > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// PullMerge pulls and merges into the local history. It never removes local
// records, so no confirmation is needed.
func (e *Engine) PullMerge(ctx context.Context, settings models.SyncSettings) (int, error) {
	incoming, err := e.Pull(ctx, settings.SyncID)
	if err != nil {
		return 0, err
	}
	return e.MergeLocal(ctx, incoming)
}

// FullSync pulls, merges into the local history and pushes the merged result
// back, so local and remote hold the same set of records afterwards.
func (e *Engine) FullSync(ctx context.Context, settings models.SyncSettings) (int, models.SyncSettings, error) {
	incoming, err := e.Pull(ctx, settings.SyncID)
	if err != nil {
		return 0, settings, err
	}

	var (
		added  int
		merged []models.Measurement
	)
	err = e.store.UpdateHistory(ctx, func(local []models.Measurement) ([]models.Measurement, bool, error) {
		merged, added = Merge(local, incoming)
		return merged, added > 0, nil
	})
	if err != nil {
		return 0, settings, err
	}

	updated, err := e.Push(ctx, settings, merged)
	if err != nil {
		return added, settings, err
	}
	return added, updated, nil
}

// ReplaceLocal is the destructive pull: local history becomes the remote copy.
// confirm is asked with both record counts and must approve, otherwise
// ErrNotConfirmed is returned and nothing is changed. If local records were
// added or removed while confirm ran, ErrHistoryChanged is returned instead.
func (e *Engine) ReplaceLocal(ctx context.Context, settings models.SyncSettings, confirm ConfirmFunc) (int, error) {
	incoming, err := e.Pull(ctx, settings.SyncID)
	if err != nil {
		return 0, err
	}
	local, err := e.store.GetHistory(ctx)
	if err != nil {
		return 0, err
	}
	if confirm == nil || !confirm(len(local), len(incoming)) {
		return 0, ErrNotConfirmed
	}

	confirmed := models.IDs(local)
	replacement := Dedupe(incoming)
	err = e.store.UpdateHistory(ctx, func(current []models.Measurement) ([]models.Measurement, bool, error) {
		if !sameIDs(confirmed, current) {
			return nil, false, ErrHistoryChanged
		}
		return replacement, true, nil
	})
	if err != nil {
		return 0, err
	}
	logger.Printf("replaced %d local measurement(s) with %d from %s\n", len(local), len(replacement), settings.SyncID)
	return len(replacement), nil
}

func sameIDs(ids map[string]struct{}, history []models.Measurement) bool {
	if len(ids) != len(history) {
		return false
	}
	for _, m := range history {
		if _, ok := ids[m.ID]; !ok {
			return false
		}
	}
	return true
}
