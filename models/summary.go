package models

import "time"

// Filter selects records from a history view
type Filter struct {
	AlertsOnly bool
	Point      SamplingPoint
}

// FilterHistory returns the records matching f, preserving order
func FilterHistory(history []Measurement, f Filter) []Measurement {
	out := make([]Measurement, 0, len(history))
	for _, m := range history {
		if f.AlertsOnly && !m.HasAlerts() {
			continue
		}
		if f.Point != "" && m.Point != f.Point {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Summary is the dashboard view of a history
type Summary struct {
	Total         int                           `json:"total"`
	Today         int                           `json:"today"`
	WithAlerts    int                           `json:"withAlerts"`
	LatestAt      *int64                        `json:"latestAt,omitempty"`
	LatestByPoint map[SamplingPoint]Measurement `json:"latestByPoint"`
}

// Summarize computes dashboard counters. "Today" is the calendar day of now
// in now's location.
func Summarize(history []Measurement, now time.Time) Summary {
	s := Summary{
		Total:         len(history),
		LatestByPoint: make(map[SamplingPoint]Measurement),
	}
	y, mo, d := now.Date()
	for _, m := range history {
		t := m.Time().In(now.Location())
		if ty, tmo, td := t.Date(); ty == y && tmo == mo && td == d {
			s.Today++
		}
		if m.HasAlerts() {
			s.WithAlerts++
		}
		if s.LatestAt == nil || m.Timestamp > *s.LatestAt {
			ts := m.Timestamp
			s.LatestAt = &ts
		}
		if cur, ok := s.LatestByPoint[m.Point]; !ok || m.Timestamp > cur.Timestamp {
			s.LatestByPoint[m.Point] = m
		}
	}
	return s
}
