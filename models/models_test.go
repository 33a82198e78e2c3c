package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEvaluateAlerts(t *testing.T) {
	tests := []struct {
		name   string
		r      Readings
		fields []string
	}{
		{"nothing measured", Readings{}, nil},
		{"within band", Readings{PH: Float(7.2), Ammonium: Float(3)}, nil},
		{"acidic", Readings{PH: Float(6.1)}, []string{"pH"}},
		{"alkaline and ammonium", Readings{PH: Float(9), Ammonium: Float(5.5)}, []string{"pH", "NH4"}},
		{"ammonium at limit", Readings{Ammonium: Float(5)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := DefaultThresholds.EvaluateAlerts(tt.r)
			if alerts == nil {
				t.Fatal("alerts must not be nil")
			}
			if len(alerts) != len(tt.fields) {
				t.Fatalf("got %d alerts, want %d: %+v", len(alerts), len(tt.fields), alerts)
			}
			for i, f := range tt.fields {
				if alerts[i].Field != f {
					t.Fatalf("alert %d field = %q, want %q", i, alerts[i].Field, f)
				}
			}
		})
	}
}

func TestCalculateMLSS(t *testing.T) {
	if CalculateMLSS(Float(1), nil) != nil {
		t.Fatal("expected nil when a reading is missing")
	}
	got := CalculateMLSS(Float(0.1000), Float(0.1175))
	if got == nil || *got != 3.5 {
		t.Fatalf("CalculateMLSS = %v, want 3.5", got)
	}
	if got := CalculateMLSS(Float(0.2), Float(0.1)); *got != 0 {
		t.Fatalf("negative result must clamp to 0, got %v", *got)
	}
}

func TestNewMeasurement(t *testing.T) {
	ts := time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC)
	m, err := NewMeasurement(EntryInput{
		Point:     PointSBR3,
		Timestamp: ts,
		Readings:  Readings{PH: Float(8.9)},
		ScaleA:    Float(0.1),
		ScaleB:    Float(0.11),
		Note:      "  foam on surface ",
	}, DefaultThresholds)
	if err != nil {
		t.Fatalf("NewMeasurement: %v", err)
	}
	if m.ID == "" || m.Timestamp != ts.UnixMilli() {
		t.Fatalf("unexpected identity: %+v", m)
	}
	if m.MLSS == nil || *m.MLSS != 2 {
		t.Fatalf("mlss = %v", m.MLSS)
	}
	if len(m.Alerts) != 1 || m.Note != "foam on surface" || m.IsSynced {
		t.Fatalf("unexpected measurement: %+v", m)
	}

	if _, err := NewMeasurement(EntryInput{Timestamp: ts}, DefaultThresholds); err == nil {
		t.Fatal("expected error without point")
	}
}

func TestMeasurementJSONWireNames(t *testing.T) {
	m := Measurement{ID: "a", Timestamp: 100, Point: PointSBR2, Readings: Readings{COD: Float(120), Ammonium: Float(2)}, Alerts: []Alert{}}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"id":"a"`, `"timestamp":100`, `"chzt":120`, `"nh4":2`, `"alerts":[]`, `"isSynced":false`} {
		if !strings.Contains(s, want) {
			t.Fatalf("%s missing from %s", want, s)
		}
	}
	if strings.Contains(s, `"ph"`) {
		t.Fatalf("absent reading serialized: %s", s)
	}
}

func TestSortHistory(t *testing.T) {
	h := []Measurement{{ID: "b", Timestamp: 100}, {ID: "c", Timestamp: 300}, {ID: "a", Timestamp: 100}}
	SortHistory(h)
	got := []string{h[0].ID, h[1].ID, h[2].ID}
	if strings.Join(got, ",") != "c,a,b" {
		t.Fatalf("order = %v", got)
	}
}

func TestSyncIDHelpers(t *testing.T) {
	if got := NormalizeSyncID("  sbr-12 ab!\n"); got != "sbr-12ab" {
		t.Fatalf("NormalizeSyncID = %q", got)
	}
	if ValidSyncID("") || ValidSyncID("abc") || !ValidSyncID("abcd") {
		t.Fatal("unexpected ValidSyncID results")
	}
	id := GenerateSyncID()
	if !strings.HasPrefix(id, "SBR-") || len(id) != 10 || NormalizeSyncID(id) != id {
		t.Fatalf("GenerateSyncID = %q", id)
	}
}

func TestFilterAndSummarize(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	history := []Measurement{
		{ID: "1", Timestamp: now.Add(-time.Hour).UnixMilli(), Point: PointSBR2, Alerts: []Alert{{Field: "pH"}}},
		{ID: "2", Timestamp: now.Add(-2 * time.Hour).UnixMilli(), Point: PointSBR2},
		{ID: "3", Timestamp: now.Add(-30 * time.Hour).UnixMilli(), Point: PointFlotation},
	}

	if got := FilterHistory(history, Filter{AlertsOnly: true}); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("alerts filter = %+v", got)
	}
	if got := FilterHistory(history, Filter{Point: PointFlotation}); len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("point filter = %+v", got)
	}

	s := Summarize(history, now)
	if s.Total != 3 || s.Today != 2 || s.WithAlerts != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if *s.LatestAt != history[0].Timestamp || s.LatestByPoint[PointSBR2].ID != "1" {
		t.Fatalf("latest = %+v", s)
	}
}

func TestParseSamplingPoint(t *testing.T) {
	if p, ok := ParseSamplingPoint("sbr4"); !ok || p != PointSBR4 {
		t.Fatalf("ParseSamplingPoint = %q, %v", p, ok)
	}
	if _, ok := ParseSamplingPoint("SBR9"); ok {
		t.Fatal("unknown point accepted")
	}
	if !PointSBR2.IsSBR() || PointFlotation.IsSBR() {
		t.Fatal("IsSBR mismatch")
	}
}
