package scanner

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"sbr_monitor/logger"
	"sbr_monitor/models"
)

// Merger merges parsed measurements into the local history
type Merger interface {
	MergeLocal(ctx context.Context, incoming []models.Measurement) (int, error)
}

// CSVScanner handles scanning and processing measurement CSV files
type CSVScanner struct {
	merger      Merger
	thresholds  models.Thresholds
	workerCount int
}

// FileJob represents a CSV file to be processed
type FileJob struct {
	FilePath string
	FileName string
}

// ProcessResult contains the result of parsing a CSV file
type ProcessResult struct {
	FilePath     string
	Measurements []models.Measurement
	ErrorCount   int
	Duration     time.Duration
	Error        error
}

// ScanSummary totals a directory scan
type ScanSummary struct {
	Files       int
	FailedFiles int
	Rows        int
	RowErrors   int
	Added       int
}

// NewCSVScanner creates a new CSV scanner. Alerts of imported rows are
// computed with thresholds.
func NewCSVScanner(merger Merger, thresholds models.Thresholds) *CSVScanner {
	// Default to number of CPU cores for parallel parsing
	workerCount := runtime.NumCPU()
	if workerCount > 8 {
		workerCount = 8
	}

	return &CSVScanner{
		merger:      merger,
		thresholds:  thresholds,
		workerCount: workerCount,
	}
}

// SetWorkerCount sets the number of parallel workers
func (cs *CSVScanner) SetWorkerCount(count int) {
	if count > 0 {
		cs.workerCount = count
	}
}

// ScanDirectory parses every CSV file in a directory in parallel and merges
// the rows into the local history in a single update.
func (cs *CSVScanner) ScanDirectory(ctx context.Context, directoryPath string) (ScanSummary, error) {
	logger.Printf("Scanning directory: %s\n", directoryPath)

	if _, err := os.Stat(directoryPath); os.IsNotExist(err) {
		return ScanSummary{}, fmt.Errorf("directory does not exist: %s", directoryPath)
	}

	csvFiles, err := cs.findCSVFiles(directoryPath)
	if err != nil {
		return ScanSummary{}, fmt.Errorf("failed to find CSV files: %w", err)
	}

	if len(csvFiles) == 0 {
		logger.Println("No CSV files found in the directory")
		return ScanSummary{}, nil
	}

	logger.Printf("Found %d CSV file(s) to process\n", len(csvFiles))
	logger.Printf("Processing with %d parallel workers\n", cs.workerCount)

	results := cs.processFilesParallel(csvFiles)

	summary := ScanSummary{Files: len(results)}
	var all []models.Measurement
	for _, r := range results {
		if r.Error != nil {
			summary.FailedFiles++
			continue
		}
		summary.Rows += len(r.Measurements)
		summary.RowErrors += r.ErrorCount
		all = append(all, r.Measurements...)
	}

	if len(all) > 0 {
		added, err := cs.merger.MergeLocal(ctx, all)
		if err != nil {
			return summary, fmt.Errorf("failed to merge measurements: %w", err)
		}
		summary.Added = added
	}

	cs.displaySummary(results, summary)
	return summary, nil
}

// findCSVFiles finds all CSV files in the specified directory (non-recursive)
func (cs *CSVScanner) findCSVFiles(directoryPath string) ([]FileJob, error) {
	var csvFiles []FileJob

	entries, err := os.ReadDir(directoryPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".csv" {
			csvFiles = append(csvFiles, FileJob{
				FilePath: filepath.Join(directoryPath, entry.Name()),
				FileName: entry.Name(),
			})
		}
	}

	return csvFiles, nil
}

// processFilesParallel parses CSV files in parallel using worker goroutines
func (cs *CSVScanner) processFilesParallel(files []FileJob) []ProcessResult {
	jobs := make(chan FileJob, len(files))
	results := make(chan ProcessResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < cs.workerCount; i++ {
		wg.Add(1)
		go cs.worker(jobs, results, &wg)
	}

	go func() {
		for _, file := range files {
			jobs <- file
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var allResults []ProcessResult
	for result := range results {
		allResults = append(allResults, result)
		logger.LogProgress(len(allResults), len(files), filepath.Base(result.FilePath))
	}

	return allResults
}

// worker parses CSV files from the job channel
func (cs *CSVScanner) worker(jobs <-chan FileJob, results chan<- ProcessResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		results <- cs.processCSVFile(job)
	}
}

// processCSVFile parses a single CSV file
func (cs *CSVScanner) processCSVFile(job FileJob) ProcessResult {
	startTime := time.Now()
	result := ProcessResult{FilePath: job.FilePath}

	logger.Printf("Processing file: %s\n", job.FileName)

	file, err := os.Open(job.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("failed to open file: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		result.Error = fmt.Errorf("failed to read CSV: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}

	if len(records) == 0 {
		result.Error = fmt.Errorf("empty CSV file")
		result.Duration = time.Since(startTime)
		return result
	}

	result.Measurements, result.ErrorCount = cs.ParseRecords(records, job.FileName)
	result.Duration = time.Since(startTime)
	logger.Printf("✓ Parsed %s: %d measurements, %d errors in %v\n",
		job.FileName, len(result.Measurements), result.ErrorCount, result.Duration)

	return result
}

// ParseRecords turns CSV rows into measurements. A header row selects the
// columns; without one the Columns order is assumed. Bad rows are counted
// and skipped.
func (cs *CSVScanner) ParseRecords(records [][]string, fileName string) ([]models.Measurement, int) {
	var measurements []models.Measurement
	var errorCount int

	layout := defaultLayout()
	startRow := 0
	if len(records) > 0 && isHeaderRow(records[0]) {
		layout = headerLayout(records[0])
		startRow = 1
	}
	if layout.timestamp < 0 || layout.point < 0 {
		logger.Warnf("%s has no timestamp or point column\n", fileName)
		return nil, len(records) - startRow
	}

	for i := startRow; i < len(records); i++ {
		record := records[i]

		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		m, err := cs.parseRow(record, layout)
		if err != nil {
			errorCount++
			logger.Warnf("Row %d in %s: %v\n", i+1, fileName, err)
			continue
		}
		measurements = append(measurements, m)
	}

	return measurements, errorCount
}

func (cs *CSVScanner) parseRow(record []string, layout columnLayout) (models.Measurement, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	timestamp, err := parseTimestamp(field(layout.timestamp))
	if err != nil {
		return models.Measurement{}, err
	}

	point, ok := models.ParseSamplingPoint(field(layout.point))
	if !ok {
		return models.Measurement{}, fmt.Errorf("unknown sampling point %q", field(layout.point))
	}

	var readings models.Readings
	for col, dst := range readingTargets(&readings) {
		raw := field(layout.readings[col])
		if raw == "" {
			continue
		}
		v, err := parseNumber(raw)
		if err != nil {
			return models.Measurement{}, fmt.Errorf("invalid %s value: %s", col, raw)
		}
		*dst = &v
	}

	ms := timestamp.UnixMilli()
	id := field(layout.id)
	if id == "" {
		id = models.DeterministicID(point, ms)
	}

	return models.Measurement{
		ID:        id,
		Timestamp: ms,
		Point:     point,
		Readings:  readings,
		Note:      field(layout.note),
		Alerts:    cs.thresholds.EvaluateAlerts(readings),
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format: %s", s)
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

// isHeaderRow checks if the first row is likely a header
func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}

	firstCol := strings.ToLower(strings.TrimSpace(row[0]))
	for _, word := range []string{"timestamp", "time", "date", "datetime", "id"} {
		if strings.Contains(firstCol, word) {
			return true
		}
	}

	_, err := parseTimestamp(strings.TrimSpace(row[0]))
	return err != nil
}

// displaySummary displays a summary of the processing results
func (cs *CSVScanner) displaySummary(results []ProcessResult, summary ScanSummary) {
	logger.Println("\n" + strings.Repeat("=", 60))
	logger.Println("SCAN SUMMARY")
	logger.Println(strings.Repeat("=", 60))

	totalDuration := time.Duration(0)
	for _, result := range results {
		if result.Error != nil {
			logger.Printf("❌ %s: FAILED - %v\n", filepath.Base(result.FilePath), result.Error)
		} else {
			logger.Printf("✅ %s: %d measurements, %d errors (%v)\n",
				filepath.Base(result.FilePath), len(result.Measurements), result.ErrorCount, result.Duration)
		}
		totalDuration += result.Duration
	}

	logger.Println(strings.Repeat("-", 60))
	logger.Printf("Total files processed: %d\n", summary.Files)
	logger.Printf("Failed: %d\n", summary.FailedFiles)
	logger.Printf("Rows parsed: %d\n", summary.Rows)
	logger.Printf("Row errors: %d\n", summary.RowErrors)
	logger.Printf("New measurements merged: %d\n", summary.Added)
	logger.Printf("Total parsing time: %v\n", totalDuration)
	logger.Println(strings.Repeat("=", 60))
}
