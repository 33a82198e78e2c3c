// Package synccontrol decides when reconciliation runs: after local
// mutations, on a fixed interval and on operator demand.
package synccontrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sbr_monitor/config"
	"sbr_monitor/logger"
	"sbr_monitor/models"
	"sbr_monitor/reconcile"
	"sbr_monitor/remote"
)

// Operation names reported in the status snapshot
const (
	OpPush     = "push"
	OpPull     = "pull"
	OpReplace  = "pull_replace"
	OpFullSync = "full_sync"
	OpGenerate = "generate_id"
)

// Controller owns the sync triggers for one device
type Controller struct {
	engine   *reconcile.Engine
	store    reconcile.LocalStore
	probe    Probe
	status   *Status
	interval time.Duration

	background sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Controller. A nil probe falls back to a TCP probe of
// cfg.ProbeAddress (always online when unset).
func New(engine *reconcile.Engine, cfg config.SyncConfig, probe Probe) *Controller {
	if probe == nil {
		probe = TCPProbe{Address: cfg.ProbeAddress}
	}
	return &Controller{
		engine:   engine,
		store:    engine.Store(),
		probe:    probe,
		status:   NewStatus(cfg.StatusReset()),
		interval: cfg.Interval(),
	}
}

// Store returns the local store behind the controller
func (c *Controller) Store() reconcile.LocalStore {
	return c.store
}

// Status returns the status of the latest on-demand operation
func (c *Controller) Status() Snapshot {
	return c.status.Snapshot()
}

// Settings returns the stored sync settings
func (c *Controller) Settings(ctx context.Context) (models.SyncSettings, error) {
	return c.store.GetSettings(ctx)
}

// AddMeasurement stores m and, with auto-sync on, pushes in the background.
// The local write is authoritative; a failed push never undoes it.
func (c *Controller) AddMeasurement(ctx context.Context, m models.Measurement) error {
	if err := c.store.AddMeasurement(ctx, m); err != nil {
		return err
	}
	c.afterMutation(ctx, "add "+m.ID)
	return nil
}

// DeleteMeasurement removes the record and, with auto-sync on, pushes in the background
func (c *Controller) DeleteMeasurement(ctx context.Context, id string) error {
	if err := c.store.DeleteMeasurement(ctx, id); err != nil {
		return err
	}
	c.afterMutation(ctx, "delete "+id)
	return nil
}

// MergeLocal merges incoming records (import, CSV scan) into the local
// history and pushes in the background when anything was added
func (c *Controller) MergeLocal(ctx context.Context, incoming []models.Measurement) (int, error) {
	added, err := c.engine.MergeLocal(ctx, incoming)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		c.afterMutation(ctx, fmt.Sprintf("merge of %d record(s)", added))
	}
	return added, nil
}

func (c *Controller) afterMutation(ctx context.Context, what string) {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		logger.Warnf("auto-sync skipped after %s: %v\n", what, err)
		return
	}
	if !settings.AutoSyncEnabled || !settings.Enabled() {
		return
	}

	bg := context.WithoutCancel(ctx)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if !c.probe.Online(bg) {
			logger.Debugf("auto-sync after %s skipped: offline\n", what)
			return
		}
		history, err := c.store.GetHistory(bg)
		if err != nil {
			logger.Warnf("auto-sync after %s: %v\n", what, err)
			return
		}
		if _, err := c.engine.Push(bg, settings, history); err != nil {
			logger.Warnf("auto-sync push after %s failed: %v\n", what, err)
			return
		}
		logger.Debugf("auto-sync push after %s done\n", what)
	}()
}

// Wait blocks until background pushes have finished
func (c *Controller) Wait() {
	c.background.Wait()
}

// Tick runs one interval cycle: pull, merge, and push back when the pull
// brought anything new. It does nothing when auto-sync is off or offline.
func (c *Controller) Tick(ctx context.Context) (int, error) {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.AutoSyncEnabled || !settings.Enabled() {
		return 0, nil
	}
	if !c.probe.Online(ctx) {
		logger.Debugf("interval sync skipped: offline\n")
		return 0, nil
	}

	added, err := c.engine.PullMerge(ctx, settings)
	if err != nil || added == 0 {
		return added, err
	}

	history, err := c.store.GetHistory(ctx)
	if err != nil {
		return added, err
	}
	if _, err := c.engine.Push(ctx, settings, history); err != nil {
		return added, err
	}
	return added, nil
}

// Start runs Tick every interval until Stop is called or ctx ends
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil || c.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				added, err := c.Tick(ctx)
				if err != nil {
					logger.Warnf("interval sync failed: %v\n", err)
				} else if added > 0 {
					logger.Printf("interval sync merged %d new measurement(s)\n", added)
				}
			}
		}
	}()
	logger.Debugf("interval sync started (every %s)\n", c.interval)
}

// Stop cancels the interval loop and waits for it to exit
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Controller) run(op string, fn func() (int, error)) (int, error) {
	c.status.Begin(op)
	added, err := fn()
	c.status.Finish(op, added, err)
	if err != nil {
		logger.Warnf("%s failed: %v\n", op, err)
	}
	return added, err
}

// Push overwrites the remote document with the local history
func (c *Controller) Push(ctx context.Context) (models.SyncSettings, error) {
	var updated models.SyncSettings
	_, err := c.run(OpPush, func() (int, error) {
		settings, err := c.store.GetSettings(ctx)
		if err != nil {
			return 0, err
		}
		history, err := c.store.GetHistory(ctx)
		if err != nil {
			return 0, err
		}
		updated, err = c.engine.Push(ctx, settings, history)
		return 0, err
	})
	return updated, err
}

// Pull merges the remote history into the local one
func (c *Controller) Pull(ctx context.Context) (int, error) {
	return c.run(OpPull, func() (int, error) {
		settings, err := c.store.GetSettings(ctx)
		if err != nil {
			return 0, err
		}
		return c.engine.PullMerge(ctx, settings)
	})
}

// PullReplace replaces the local history with the remote one once confirm agrees
func (c *Controller) PullReplace(ctx context.Context, confirm reconcile.ConfirmFunc) (int, error) {
	return c.run(OpReplace, func() (int, error) {
		settings, err := c.store.GetSettings(ctx)
		if err != nil {
			return 0, err
		}
		return c.engine.ReplaceLocal(ctx, settings, confirm)
	})
}

// FullSync pulls, merges and pushes the merged history back. It returns the
// settings as stamped by the push.
func (c *Controller) FullSync(ctx context.Context) (int, models.SyncSettings, error) {
	var updated models.SyncSettings
	added, err := c.run(OpFullSync, func() (int, error) {
		settings, err := c.store.GetSettings(ctx)
		if err != nil {
			return 0, err
		}
		var added int
		added, updated, err = c.engine.FullSync(ctx, settings)
		return added, err
	})
	return added, updated, err
}

// SetSyncID normalizes and stores an operator-chosen identifier
func (c *Controller) SetSyncID(ctx context.Context, id string) (models.SyncSettings, error) {
	id = models.NormalizeSyncID(id)
	if err := remote.ValidateID(id); err != nil {
		return models.SyncSettings{}, err
	}
	var updated models.SyncSettings
	err := c.store.UpdateSettings(ctx, func(settings models.SyncSettings) (models.SyncSettings, error) {
		if settings.SyncID != id {
			settings.LastSync = nil
		}
		settings.SyncID = id
		updated = settings
		return settings, nil
	})
	if err != nil {
		return updated, err
	}
	logger.Printf("sync identifier set to %s\n", id)
	return updated, nil
}

// GenerateSyncID asks the provider for a new document and stores its id
func (c *Controller) GenerateSyncID(ctx context.Context) (models.SyncSettings, error) {
	var settings models.SyncSettings
	_, err := c.run(OpGenerate, func() (int, error) {
		id, err := c.engine.Client().CreateDocument(ctx)
		if err != nil {
			return 0, err
		}
		id = models.NormalizeSyncID(id)
		if !models.ValidSyncID(id) {
			return 0, fmt.Errorf("%w: provider returned %q", remote.ErrInvalidID, id)
		}
		settings, err = c.SetSyncID(ctx, id)
		return 0, err
	})
	return settings, err
}

// ClearSyncID resets the settings to the empty, sync-disabled state
func (c *Controller) ClearSyncID(ctx context.Context) (models.SyncSettings, error) {
	settings := models.SyncSettings{}
	if err := c.store.SaveSettings(ctx, settings); err != nil {
		return settings, err
	}
	logger.Printf("sync identifier cleared\n")
	return settings, nil
}

// SetAutoSync turns the mutation and interval triggers on or off
func (c *Controller) SetAutoSync(ctx context.Context, enabled bool) (models.SyncSettings, error) {
	var updated models.SyncSettings
	err := c.store.UpdateSettings(ctx, func(settings models.SyncSettings) (models.SyncSettings, error) {
		settings.AutoSyncEnabled = enabled
		updated = settings
		return settings, nil
	})
	return updated, err
}
