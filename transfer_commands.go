package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"sbr_monitor/api"
	"sbr_monitor/logger"
	"sbr_monitor/scanner"
	"sbr_monitor/transfer"
)

// shutdownTimeout bounds graceful server shutdown
const shutdownTimeout = 10 * time.Second

// openOutput returns stdout for "-" and a new file otherwise
func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportCommand(path string) {
	ctx := context.Background()
	a := openApp(ctx)

	history, err := a.store.GetHistory(ctx)
	if err != nil {
		logger.Fatalf("Failed to load history: %v\n", err)
	}

	out, err := openOutput(path)
	if err != nil {
		logger.Fatalf("Failed to create %s: %v\n", path, err)
	}
	defer out.Close()

	if err := transfer.ExportJSON(out, history); err != nil {
		logger.Fatalf("Export failed: %v\n", err)
	}
	if path != "-" {
		fmt.Printf("✓ Exported %d measurement(s) to %s\n", len(history), path)
	}
}

func exportCodeCommand() {
	ctx := context.Background()
	a := openApp(ctx)

	history, err := a.store.GetHistory(ctx)
	if err != nil {
		logger.Fatalf("Failed to load history: %v\n", err)
	}
	code, err := transfer.EncodeShareCode(history)
	if err != nil {
		logger.Fatalf("Failed to encode share code: %v\n", err)
	}
	fmt.Println(code)
}

func exportCSVCommand(path string) {
	ctx := context.Background()
	a := openApp(ctx)

	history, err := a.store.GetHistory(ctx)
	if err != nil {
		logger.Fatalf("Failed to load history: %v\n", err)
	}

	out, err := openOutput(path)
	if err != nil {
		logger.Fatalf("Failed to create %s: %v\n", path, err)
	}
	defer out.Close()

	if err := scanner.WriteCSV(out, history); err != nil {
		logger.Fatalf("CSV export failed: %v\n", err)
	}
	if path != "-" {
		fmt.Printf("✓ Exported %d measurement(s) to %s\n", len(history), path)
	}
}

func importCommand(path string) {
	ctx := context.Background()

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		logger.Fatalf("Failed to read %s: %v\n", path, err)
	}

	a := openApp(ctx)
	added, err := transfer.Import(ctx, a.ctl, data)
	if err != nil {
		logger.LogResult("import", false, err.Error())
		logger.Fatalf("Import failed: %v\n", err)
	}
	a.ctl.Wait()
	logger.LogResult("import", true, fmt.Sprintf("%d new measurement(s) merged", added))
}

func scanCommand(directoryPath string) {
	ctx := context.Background()
	a := openApp(ctx)

	csvScanner := scanner.NewCSVScanner(a.ctl, a.thresholds)
	summary, err := csvScanner.ScanDirectory(ctx, directoryPath)
	if err != nil {
		logger.Fatalf("Scan failed: %v\n", err)
	}
	a.ctl.Wait()

	logger.LogResult("scan", summary.FailedFiles == 0,
		fmt.Sprintf("%d file(s), %d row(s), %d row error(s), %d new measurement(s)",
			summary.Files, summary.Rows, summary.RowErrors, summary.Added))
}

func generateCommand(args []string) {
	outputDir := args[0]
	days := 30
	seed := time.Now().UnixNano()

	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			fmt.Printf("Invalid days: %s\n", args[1])
			return
		}
		days = n
	}
	if len(args) > 2 {
		n, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fmt.Printf("Invalid seed: %s\n", args[2])
			return
		}
		seed = n
	}

	files, err := scanner.GenerateSampleFiles(outputDir, days, time.Now(), seed)
	if err != nil {
		logger.Fatalf("Generation failed: %v\n", err)
	}
	for _, f := range files {
		logger.Printf("  %s\n", f)
	}
	logger.Printf("✓ Generated %d file(s) covering %d day(s) in %s\n", len(files), days, outputDir)
	logger.Printf("Run 'sbr_monitor scan %s' to import them\n", outputDir)
}

func serveCommand() {
	ctx, stop := syncContext()
	defer stop()

	a := openApp(ctx)
	router := api.NewRouter(api.NewHandler(a.ctl, a.thresholds))
	server := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.ctl.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Listening on http://%s\n", a.cfg.Server.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Errorf("Server failed: %v\n", err)
		}
	}

	logger.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v\n", err)
	}
	a.ctl.Stop()
	a.ctl.Wait()
}
