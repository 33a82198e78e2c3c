package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sbr_monitor/logger"
	"sbr_monitor/models"
)

// entryTimeLayouts are accepted for the at= argument, in local time
var entryTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// parseEntryArgs turns key=value arguments into an EntryInput
func parseEntryArgs(point models.SamplingPoint, args []string) (models.EntryInput, error) {
	in := models.EntryInput{Point: point, Timestamp: time.Now()}
	targets := map[string]**float64{
		"ph":    &in.Readings.PH,
		"chzt":  &in.Readings.COD,
		"tn":    &in.Readings.TotalNitrogen,
		"tp":    &in.Readings.TotalPhosphorus,
		"nh4":   &in.Readings.Ammonium,
		"no3":   &in.Readings.Nitrate,
		"caco3": &in.Readings.Alkalinity,
		"mlss":  &in.Readings.MLSS,
		"temp":  &in.Readings.Temperature,
		"a":     &in.ScaleA,
		"b":     &in.ScaleB,
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return in, fmt.Errorf("expected key=value, got %q", arg)
		}
		key = strings.ToLower(strings.TrimSpace(key))

		switch key {
		case "at":
			t, err := parseEntryTime(value)
			if err != nil {
				return in, err
			}
			in.Timestamp = t
		case "note":
			in.Note = value
		default:
			target, known := targets[key]
			if !known {
				return in, fmt.Errorf("unknown field %q", key)
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
			if err != nil {
				return in, fmt.Errorf("invalid number for %s: %q", key, value)
			}
			*target = models.Float(v)
		}
	}
	return in, nil
}

func parseEntryTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range entryTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (use YYYY-MM-DD HH:MM)", s)
}

func addCommand(pointName string, args []string) {
	ctx := context.Background()

	point, ok := models.ParseSamplingPoint(pointName)
	if !ok {
		logger.Fatalf("Unknown sampling point: %s\n", pointName)
	}
	in, err := parseEntryArgs(point, args)
	if err != nil {
		logger.Fatalf("Invalid measurement: %v\n", err)
	}

	a := openApp(ctx)
	m, err := models.NewMeasurement(in, a.thresholds)
	if err != nil {
		logger.Fatalf("Invalid measurement: %v\n", err)
	}
	if err := a.ctl.AddMeasurement(ctx, m); err != nil {
		logger.Fatalf("Failed to save measurement: %v\n", err)
	}
	// let an auto-sync push finish before the process exits
	a.ctl.Wait()

	logger.Printf("✓ Saved measurement %s (%s, %s)\n", m.ID, m.Point, m.Time().Local().Format("2006-01-02 15:04"))
	for _, alert := range m.Alerts {
		logger.Warnf("%s: %g\n", alert.Message, alert.Value)
	}
}

func listCommand(args []string) {
	ctx := context.Background()

	var filter models.Filter
	limit := 0
	for _, arg := range args {
		switch {
		case arg == "--alerts":
			filter.AlertsOnly = true
		case strings.HasPrefix(arg, "--point="):
			p, ok := models.ParseSamplingPoint(strings.TrimPrefix(arg, "--point="))
			if !ok {
				fmt.Printf("Unknown sampling point: %s\n", arg)
				return
			}
			filter.Point = p
		case strings.HasPrefix(arg, "--limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit="))
			if err != nil || n < 0 {
				fmt.Printf("Invalid limit: %s\n", arg)
				return
			}
			limit = n
		default:
			fmt.Printf("Unknown option: %s\n", arg)
			return
		}
	}

	a := openApp(ctx)
	history, err := a.store.GetHistory(ctx)
	if err != nil {
		logger.Fatalf("Failed to load history: %v\n", err)
	}
	rows := models.FilterHistory(history, filter)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	if len(rows) == 0 {
		fmt.Println("No measurements")
		return
	}

	fmt.Printf("%-16s %-22s %-36s %s\n", "Time", "Point", "ID", "Readings")
	fmt.Println(strings.Repeat("-", 100))
	for _, m := range rows {
		fmt.Printf("%-16s %-22s %-36s %s\n",
			m.Time().Local().Format("2006-01-02 15:04"), m.Point, m.ID, formatReadings(m))
	}
	fmt.Printf("\n%d of %d measurement(s)\n", len(rows), len(history))
}

func formatReadings(m models.Measurement) string {
	fields := []struct {
		name  string
		value *float64
	}{
		{"pH", m.PH},
		{"ChZT", m.COD},
		{"TN", m.TotalNitrogen},
		{"TP", m.TotalPhosphorus},
		{"NH4", m.Ammonium},
		{"NO3", m.Nitrate},
		{"CaCO3", m.Alkalinity},
		{"MLSS", m.MLSS},
		{"T", m.Temperature},
	}

	var parts []string
	for _, f := range fields {
		if f.value != nil {
			parts = append(parts, fmt.Sprintf("%s=%g", f.name, *f.value))
		}
	}
	if m.HasAlerts() {
		parts = append(parts, fmt.Sprintf("[%d alert(s)]", len(m.Alerts)))
	}
	return strings.Join(parts, " ")
}

func deleteCommand(id string) {
	ctx := context.Background()
	a := openApp(ctx)

	if err := a.ctl.DeleteMeasurement(ctx, id); err != nil {
		logger.Fatalf("Failed to delete measurement: %v\n", err)
	}
	a.ctl.Wait()
	logger.Printf("✓ Deleted measurement %s\n", id)
}

func summaryCommand() {
	ctx := context.Background()
	a := openApp(ctx)

	history, err := a.store.GetHistory(ctx)
	if err != nil {
		logger.Fatalf("Failed to load history: %v\n", err)
	}
	s := models.Summarize(history, time.Now())

	fmt.Println("Measurement Summary:")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Total:             %d\n", s.Total)
	fmt.Printf("Today:             %d\n", s.Today)
	fmt.Printf("With Alerts:       %d\n", s.WithAlerts)
	if s.LatestAt != nil {
		fmt.Printf("Latest:            %s\n", time.UnixMilli(*s.LatestAt).Local().Format("2006-01-02 15:04"))
	}

	if len(s.LatestByPoint) > 0 {
		fmt.Println("\nLatest by sampling point:")
		for _, p := range models.SamplingPoints {
			if m, ok := s.LatestByPoint[p]; ok {
				fmt.Printf("  %-22s %s  %s\n", p, m.Time().Local().Format("2006-01-02 15:04"), formatReadings(m))
			}
		}
	}

	settings, err := a.ctl.Settings(ctx)
	if err == nil {
		fmt.Println("\nSync:")
		fmt.Printf("  Sync ID:         %s\n", orNone(settings.SyncID))
		fmt.Printf("  Auto-sync:       %s\n", onOff(settings.AutoSyncEnabled))
		fmt.Printf("  Last sync:       %s\n", lastSyncText(settings))
	}
	fmt.Println(strings.Repeat("=", 50))
}
