package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sbr_monitor/logger"
	"sbr_monitor/models"
	"sbr_monitor/reconcile"
	"sbr_monitor/remote"
	"sbr_monitor/transfer"
)

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func lastSyncText(s models.SyncSettings) string {
	if s.LastSync == nil {
		return "never"
	}
	return s.LastSyncTime().Local().Format("2006-01-02 15:04:05")
}

func syncContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func pushCommand() {
	ctx, stop := syncContext()
	defer stop()

	a := openApp(ctx)
	settings, err := a.ctl.Push(ctx)
	if err != nil {
		logger.LogResult("push", false, err.Error())
		logger.Fatalf("Push failed: %v\n", err)
	}
	logger.LogResult("push", true, fmt.Sprintf("remote %s updated at %s", settings.SyncID, lastSyncText(settings)))
}

func pullCommand(args []string) {
	replace, assumeYes := false, false
	for _, arg := range args {
		switch arg {
		case "--replace":
			replace = true
		case "--yes", "-y":
			assumeYes = true
		default:
			fmt.Printf("Unknown option: %s\n", arg)
			return
		}
	}

	ctx, stop := syncContext()
	defer stop()
	a := openApp(ctx)

	if !replace {
		added, err := a.ctl.Pull(ctx)
		if err != nil {
			logger.LogResult("pull", false, err.Error())
			logger.Fatalf("Pull failed: %v\n", err)
		}
		logger.LogResult("pull", true, fmt.Sprintf("%d new measurement(s) merged", added))
		return
	}

	confirm := func(localCount, remoteCount int) bool {
		if assumeYes {
			return true
		}
		return askYesNo(fmt.Sprintf("Replace %d local measurement(s) with %d from remote?", localCount, remoteCount))
	}
	count, err := a.ctl.PullReplace(ctx, confirm)
	if errors.Is(err, reconcile.ErrNotConfirmed) {
		logger.Println("Replace cancelled, local history unchanged")
		return
	}
	if errors.Is(err, reconcile.ErrHistoryChanged) {
		logger.Warnf("Local history changed while waiting for confirmation; run pull --replace again\n")
		return
	}
	if err != nil {
		logger.LogResult("pull --replace", false, err.Error())
		logger.Fatalf("Pull failed: %v\n", err)
	}
	logger.LogResult("pull --replace", true, fmt.Sprintf("local history replaced with %d measurement(s)", count))
}

func askYesNo(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func fullSyncCommand() {
	ctx, stop := syncContext()
	defer stop()

	a := openApp(ctx)
	added, settings, err := a.ctl.FullSync(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			logger.Warnf("Remote document not found; run push first to create it\n")
		}
		logger.LogResult("sync", false, err.Error())
		logger.Fatalf("Sync failed: %v\n", err)
	}
	logger.LogResult("sync", true, fmt.Sprintf("%d new measurement(s) merged and pushed back to %s", added, settings.SyncID))
}

func watchCommand() {
	ctx, stop := syncContext()
	defer stop()

	a := openApp(ctx)
	settings, err := a.ctl.Settings(ctx)
	if err != nil {
		logger.Fatalf("Failed to load sync settings: %v\n", err)
	}
	if !settings.Enabled() || !settings.AutoSyncEnabled {
		logger.Warnf("Interval sync does nothing until a sync ID is set and autosync is on\n")
	}
	if a.cfg.Sync.Interval() <= 0 {
		logger.Fatalf("sync.interval_seconds must be positive for watch\n")
	}

	logger.Printf("Watching %s every %s (Ctrl+C to stop)\n", orNone(settings.SyncID), a.cfg.Sync.Interval())
	a.ctl.Start(ctx)
	<-ctx.Done()
	a.ctl.Stop()
	a.ctl.Wait()
	logger.Println("Interval sync stopped")
}

func idShowCommand() {
	ctx := context.Background()
	a := openApp(ctx)

	settings, err := a.ctl.Settings(ctx)
	if err != nil {
		logger.Fatalf("Failed to load sync settings: %v\n", err)
	}
	fmt.Printf("Sync ID:    %s\n", orNone(settings.SyncID))
	fmt.Printf("Auto-sync:  %s\n", onOff(settings.AutoSyncEnabled))
	fmt.Printf("Last sync:  %s\n", lastSyncText(settings))
}

func idSetCommand(id string) {
	ctx := context.Background()
	a := openApp(ctx)

	settings, err := a.ctl.SetSyncID(ctx, id)
	if err != nil {
		logger.Fatalf("Failed to set sync ID: %v\n", err)
	}
	logger.Printf("✓ Sync ID set to %s\n", settings.SyncID)
}

func idGenerateCommand() {
	ctx, stop := syncContext()
	defer stop()

	a := openApp(ctx)
	settings, err := a.ctl.GenerateSyncID(ctx)
	if err != nil {
		logger.Fatalf("Failed to generate sync ID: %v\n", err)
	}
	logger.Printf("✓ New sync ID: %s\n", settings.SyncID)
	logger.Println("Enter this ID on the other devices to share the same history")
}

func idClearCommand() {
	ctx := context.Background()
	a := openApp(ctx)

	if _, err := a.ctl.ClearSyncID(ctx); err != nil {
		logger.Fatalf("Failed to clear sync ID: %v\n", err)
	}
	logger.Println("✓ Sync disabled")
}

func idQRCommand(path string) {
	ctx := context.Background()
	a := openApp(ctx)

	settings, err := a.ctl.Settings(ctx)
	if err != nil {
		logger.Fatalf("Failed to load sync settings: %v\n", err)
	}
	if err := remote.ValidateID(settings.SyncID); err != nil {
		logger.Fatalf("No usable sync ID to encode: %v\n", err)
	}

	f, err := os.Create(path)
	if err != nil {
		logger.Fatalf("Failed to create %s: %v\n", path, err)
	}
	defer f.Close()

	if err := transfer.WriteSyncIDQR(f, settings.SyncID, 256); err != nil {
		logger.Fatalf("Failed to write QR code: %v\n", err)
	}
	fmt.Printf("✓ QR code for %s written to %s\n", settings.SyncID, path)
}

func autoSyncCommand(enabled bool) {
	ctx := context.Background()
	a := openApp(ctx)

	settings, err := a.ctl.SetAutoSync(ctx, enabled)
	if err != nil {
		logger.Fatalf("Failed to update auto-sync: %v\n", err)
	}
	logger.Printf("✓ Auto-sync %s\n", onOff(settings.AutoSyncEnabled))
	if enabled && !settings.Enabled() {
		logger.Warnf("No sync ID set; auto-sync stays idle until one is configured\n")
	}
}
