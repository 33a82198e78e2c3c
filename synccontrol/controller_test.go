package synccontrol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"sbr_monitor/config"
	"sbr_monitor/database"
	"sbr_monitor/logger"
	"sbr_monitor/models"
	"sbr_monitor/reconcile"
	"sbr_monitor/remote"
)

func init() {
	logger.InitWriter(os.Stdout, logger.ERROR)
}

type memoryRemote struct {
	mu       sync.Mutex
	docs     map[string][]models.Measurement
	reads    int
	writes   int
	writeErr error
}

func (r *memoryRemote) CreateDocument(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("SBR-%06d", len(r.docs)+1)
	r.docs[id] = []models.Measurement{}
	return id, nil
}

func (r *memoryRemote) WriteDocument(ctx context.Context, id string, history []models.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.writeErr != nil {
		return r.writeErr
	}
	r.docs[id] = append([]models.Measurement(nil), history...)
	return nil
}

func (r *memoryRemote) ReadDocument(ctx context.Context, id string) ([]models.Measurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	doc, ok := r.docs[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return append([]models.Measurement{}, doc...), nil
}

func (r *memoryRemote) doc(id string) []models.Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

func (r *memoryRemote) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func (r *memoryRemote) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func rec(id string, ts int64) models.Measurement {
	return models.Measurement{ID: id, Timestamp: ts, Point: models.PointSBR3, Alerts: []models.Alert{}}
}

type fixture struct {
	ctl    *Controller
	store  *database.MemoryStore
	remote *memoryRemote
	online bool
}

func newFixture(t *testing.T, settings models.SyncSettings, cfg config.SyncConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:  database.NewMemoryStore(nil),
		remote: &memoryRemote{docs: map[string][]models.Measurement{}},
		online: true,
	}
	if err := f.store.SaveSettings(context.Background(), settings); err != nil {
		t.Fatal(err)
	}
	engine := reconcile.NewEngine(f.store, f.remote)
	f.ctl = New(engine, cfg, ProbeFunc(func(context.Context) bool { return f.online }))
	t.Cleanup(f.ctl.Stop)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAutoSyncPushAfterMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})

	if err := f.ctl.AddMeasurement(ctx, rec("a", 100)); err != nil {
		t.Fatalf("AddMeasurement: %v", err)
	}
	f.ctl.Wait()
	if doc := f.remote.doc("doc-1"); len(doc) != 1 || doc[0].ID != "a" {
		t.Fatalf("remote = %+v", doc)
	}
	if s, _ := f.store.GetSettings(ctx); s.LastSync == nil {
		t.Fatal("LastSync not recorded after background push")
	}

	if err := f.ctl.DeleteMeasurement(ctx, "a"); err != nil {
		t.Fatalf("DeleteMeasurement: %v", err)
	}
	f.ctl.Wait()
	if doc := f.remote.doc("doc-1"); len(doc) != 0 {
		t.Fatalf("delete not pushed: %+v", doc)
	}
}

func TestAutoSyncFailureDoesNotAffectLocalWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})
	f.remote.writeErr = remote.ErrUnavailable

	if err := f.ctl.AddMeasurement(ctx, rec("a", 100)); err != nil {
		t.Fatalf("AddMeasurement returned push failure: %v", err)
	}
	f.ctl.Wait()
	if h, _ := f.store.GetHistory(ctx); len(h) != 1 {
		t.Fatalf("local write lost: %+v", h)
	}
	if s := f.ctl.Status(); s.State != StateIdle {
		t.Fatalf("background failure must not touch the status: %+v", s)
	}
}

func TestAutoSyncSkipped(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, models.SyncSettings{SyncID: "doc-1"}, config.SyncConfig{})
		_ = f.ctl.AddMeasurement(ctx, rec("a", 1))
		f.ctl.Wait()
		if n := f.remote.writeCount(); n != 0 {
			t.Fatalf("writes = %d", n)
		}
	})

	t.Run("no identifier", func(t *testing.T) {
		f := newFixture(t, models.SyncSettings{AutoSyncEnabled: true}, config.SyncConfig{})
		_ = f.ctl.AddMeasurement(ctx, rec("a", 1))
		f.ctl.Wait()
		if n := f.remote.writeCount(); n != 0 {
			t.Fatalf("writes = %d", n)
		}
	})

	t.Run("offline", func(t *testing.T) {
		f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})
		f.online = false
		_ = f.ctl.AddMeasurement(ctx, rec("a", 1))
		f.ctl.Wait()
		if n := f.remote.writeCount(); n != 0 {
			t.Fatalf("writes = %d", n)
		}
	})
}

func TestTickMergesAndPushesBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})
	_ = f.store.SetHistory(ctx, []models.Measurement{rec("local", 10)})
	f.remote.docs["doc-1"] = []models.Measurement{rec("remote", 20)}

	added, err := f.ctl.Tick(ctx)
	if err != nil || added != 1 {
		t.Fatalf("Tick: added=%d err=%v", added, err)
	}
	if h, _ := f.store.GetHistory(ctx); len(h) != 2 {
		t.Fatalf("local = %+v", h)
	}
	if doc := f.remote.doc("doc-1"); len(doc) != 2 {
		t.Fatalf("merged history not pushed back: %+v", doc)
	}

	writes := f.remote.writeCount()
	if added, err := f.ctl.Tick(ctx); err != nil || added != 0 {
		t.Fatalf("second Tick: added=%d err=%v", added, err)
	}
	if f.remote.writeCount() != writes {
		t.Fatal("nothing new was pulled, so nothing should be pushed")
	}
}

func TestTickSkipped(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		settings models.SyncSettings
		online   bool
	}{
		{"offline", models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, false},
		{"auto-sync off", models.SyncSettings{SyncID: "doc-1"}, true},
		{"no identifier", models.SyncSettings{AutoSyncEnabled: true}, true},
		{"identifier too short", models.SyncSettings{SyncID: "ab", AutoSyncEnabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.settings, config.SyncConfig{})
			f.online = tt.online
			_ = f.store.SetHistory(ctx, []models.Measurement{rec("local", 10)})
			f.remote.docs["doc-1"] = []models.Measurement{rec("remote", 20)}

			added, err := f.ctl.Tick(ctx)
			if err != nil || added != 0 {
				t.Fatalf("Tick: added=%d err=%v", added, err)
			}
			if r, w := f.remote.readCount(), f.remote.writeCount(); r != 0 || w != 0 {
				t.Fatalf("remote reads=%d writes=%d, want none", r, w)
			}
			if h, _ := f.store.GetHistory(ctx); len(h) != 1 || h[0].ID != "local" {
				t.Fatalf("local = %+v", h)
			}
		})
	}
}

func TestTickRemoteMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})
	_ = f.store.SetHistory(ctx, []models.Measurement{rec("local", 10)})

	if _, err := f.ctl.Tick(ctx); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := f.remote.writeCount(); n != 0 {
		t.Fatalf("writes = %d, want 0", n)
	}
	if h, _ := f.store.GetHistory(ctx); len(h) != 1 || h[0].ID != "local" {
		t.Fatalf("local = %+v", h)
	}
	if s, _ := f.store.GetSettings(ctx); s.LastSync != nil {
		t.Fatalf("LastSync set after failed tick: %+v", s)
	}
}

func TestStartStopRunsInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})
	f.ctl.interval = 10 * time.Millisecond
	f.remote.mu.Lock()
	f.remote.docs["doc-1"] = []models.Measurement{rec("remote", 20)}
	f.remote.mu.Unlock()

	f.ctl.Start(ctx)
	f.ctl.Start(ctx)
	waitFor(t, "interval pull", func() bool {
		h, _ := f.store.GetHistory(ctx)
		return len(h) == 1
	})
	f.ctl.Stop()
	f.ctl.Stop()
}

func TestOnDemandOperationsUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{}, config.SyncConfig{StatusResetSeconds: -1})

	if _, err := f.ctl.Push(ctx); !errors.Is(err, reconcile.ErrSyncDisabled) {
		t.Fatalf("expected ErrSyncDisabled, got %v", err)
	}
	if s := f.ctl.Status(); s.State != StateError || s.Operation != OpPush {
		t.Fatalf("status = %+v", s)
	}

	settings, err := f.ctl.GenerateSyncID(ctx)
	if err != nil || settings.SyncID != "SBR-000001" {
		t.Fatalf("GenerateSyncID: %+v %v", settings, err)
	}

	_ = f.store.SetHistory(ctx, []models.Measurement{rec("a", 1)})
	if _, _, err := f.ctl.FullSync(ctx); err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if s := f.ctl.Status(); s.State != StateSuccess || s.Operation != OpFullSync {
		t.Fatalf("status = %+v", s)
	}
	if doc := f.remote.doc("SBR-000001"); len(doc) != 1 {
		t.Fatalf("remote = %+v", doc)
	}

	if _, err := f.ctl.PullReplace(ctx, nil); !errors.Is(err, reconcile.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	n, err := f.ctl.PullReplace(ctx, func(int, int) bool { return true })
	if err != nil || n != 1 {
		t.Fatalf("PullReplace: n=%d err=%v", n, err)
	}
}

func TestSyncIDManagement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{}, config.SyncConfig{})

	if _, err := f.ctl.SetSyncID(ctx, " a!b "); !errors.Is(err, remote.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}

	settings, err := f.ctl.SetSyncID(ctx, "  plant-01 ")
	if err != nil || settings.SyncID != "plant-01" {
		t.Fatalf("SetSyncID: %+v %v", settings, err)
	}
	if settings, _ = f.ctl.SetAutoSync(ctx, true); !settings.AutoSyncEnabled {
		t.Fatal("auto-sync not enabled")
	}

	settings, err = f.ctl.ClearSyncID(ctx)
	if err != nil || settings.SyncID != "" || settings.AutoSyncEnabled {
		t.Fatalf("ClearSyncID: %+v %v", settings, err)
	}
	if stored, _ := f.ctl.Settings(ctx); stored.Enabled() {
		t.Fatalf("stored settings still enabled: %+v", stored)
	}
}

func TestStatusAutoReset(t *testing.T) {
	s := NewStatus(20 * time.Millisecond)
	s.Begin(OpPull)
	if s.Snapshot().State != StateInProgress {
		t.Fatal("expected in_progress")
	}
	s.Finish(OpPull, 2, nil)
	if snap := s.Snapshot(); snap.State != StateSuccess || snap.Added != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	waitFor(t, "reset to idle", func() bool { return s.Snapshot().State == StateIdle })

	s.Finish(OpPush, 0, errors.New("offline"))
	s.Begin(OpFullSync)
	time.Sleep(60 * time.Millisecond)
	if snap := s.Snapshot(); snap.State != StateInProgress || snap.Operation != OpFullSync {
		t.Fatalf("older reset clobbered newer operation: %+v", snap)
	}
}

func TestTCPProbe(t *testing.T) {
	if !(TCPProbe{}).Online(context.Background()) {
		t.Fatal("empty address should be online")
	}
	if (TCPProbe{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond}).Online(context.Background()) {
		t.Fatal("closed port reported online")
	}
}

func TestMergeLocalPushesOnlyWhenAdded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SyncSettings{SyncID: "doc-1", AutoSyncEnabled: true}, config.SyncConfig{})

	added, err := f.ctl.MergeLocal(ctx, []models.Measurement{rec("a", 1), rec("b", 2)})
	if err != nil || added != 2 {
		t.Fatalf("MergeLocal: added=%d err=%v", added, err)
	}
	f.ctl.Wait()
	if n := f.remote.writeCount(); n != 1 {
		t.Fatalf("writes = %d, want 1", n)
	}

	if added, _ := f.ctl.MergeLocal(ctx, []models.Measurement{rec("a", 1)}); added != 0 {
		t.Fatalf("added = %d", added)
	}
	f.ctl.Wait()
	if n := f.remote.writeCount(); n != 1 {
		t.Fatalf("writes = %d, want still 1", n)
	}
}
