package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Thresholds are the admissible bands checked when a measurement is entered
type Thresholds struct {
	PHMin  float64
	PHMax  float64
	NH4Max float64
}

// DefaultThresholds matches the plant's operating permit
var DefaultThresholds = Thresholds{PHMin: 6.5, PHMax: 8.5, NH4Max: 5.0}

// MLSSSampleVolume is the filtered sample volume in litres used by the
// suspended-solids scale method.
const MLSSSampleVolume = 0.005

// EvaluateAlerts returns the threshold violations for r. The result is never nil.
func (t Thresholds) EvaluateAlerts(r Readings) []Alert {
	alerts := []Alert{}
	if r.PH != nil && (*r.PH < t.PHMin || *r.PH > t.PHMax) {
		alerts = append(alerts, Alert{
			Field:   "pH",
			Value:   *r.PH,
			Message: fmt.Sprintf("pH out of range (%g-%g)", t.PHMin, t.PHMax),
		})
	}
	if r.Ammonium != nil && *r.Ammonium > t.NH4Max {
		alerts = append(alerts, Alert{
			Field:   "NH4",
			Value:   *r.Ammonium,
			Message: fmt.Sprintf("NH4 above limit (%g mg/l)", t.NH4Max),
		})
	}
	return alerts
}

// CalculateMLSS derives the suspended-solids concentration from the dry filter
// weight before (a) and after (b) filtration. Returns nil unless both are given.
func CalculateMLSS(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := (*b - *a) / MLSSSampleVolume
	v = math.Round(v*100) / 100
	if v < 0 {
		v = 0
	}
	return &v
}

// EntryInput is the raw operator input for a new measurement
type EntryInput struct {
	Point     SamplingPoint
	Timestamp time.Time
	Readings  Readings
	ScaleA    *float64
	ScaleB    *float64
	Note      string
}

// NewMeasurement validates input, assigns an id and computes alerts.
// Alerts are stored with the record and never recomputed.
func NewMeasurement(in EntryInput, t Thresholds) (Measurement, error) {
	if strings.TrimSpace(string(in.Point)) == "" {
		return Measurement{}, fmt.Errorf("sampling point is required")
	}
	if in.Timestamp.IsZero() {
		return Measurement{}, fmt.Errorf("timestamp is required")
	}

	readings := in.Readings
	if mlss := CalculateMLSS(in.ScaleA, in.ScaleB); mlss != nil {
		readings.MLSS = mlss
	}

	return Measurement{
		ID:        NewID(),
		Timestamp: in.Timestamp.UnixMilli(),
		Point:     in.Point,
		Readings:  readings,
		Note:      strings.TrimSpace(in.Note),
		Alerts:    t.EvaluateAlerts(readings),
		IsSynced:  false,
	}, nil
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
