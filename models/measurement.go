package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SamplingPoint tags the physical location a sample was taken at
type SamplingPoint string

const (
	PointSBR2         SamplingPoint = "SBR2"
	PointSBR3         SamplingPoint = "SBR3"
	PointSBR4         SamplingPoint = "SBR4"
	PointEqualization SamplingPoint = "Zbiornik uśredniający"
	PointFlotation    SamplingPoint = "Flotator"
)

// SamplingPoints lists every known sampling point in display order
var SamplingPoints = []SamplingPoint{PointSBR2, PointSBR3, PointSBR4, PointEqualization, PointFlotation}

// IsSBR reports whether the point is one of the sequencing batch reactors,
// the only points where suspended solids are measured.
func (p SamplingPoint) IsSBR() bool {
	return p == PointSBR2 || p == PointSBR3 || p == PointSBR4
}

// ParseSamplingPoint matches name case-insensitively against the known points
func ParseSamplingPoint(name string) (SamplingPoint, bool) {
	name = strings.TrimSpace(name)
	for _, p := range SamplingPoints {
		if strings.EqualFold(name, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Alert records a threshold violation found when the measurement was entered
type Alert struct {
	Field   string  `json:"field"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

// Readings holds the optional chemical/physical values of one sample.
// A nil field was not measured.
type Readings struct {
	PH              *float64 `gorm:"column:ph" json:"ph,omitempty"`
	COD             *float64 `gorm:"column:cod" json:"chzt,omitempty"`
	TotalNitrogen   *float64 `gorm:"column:total_nitrogen" json:"tn,omitempty"`
	TotalPhosphorus *float64 `gorm:"column:total_phosphorus" json:"tp,omitempty"`
	Ammonium        *float64 `gorm:"column:ammonium" json:"nh4,omitempty"`
	Nitrate         *float64 `gorm:"column:nitrate" json:"no3,omitempty"`
	Alkalinity      *float64 `gorm:"column:alkalinity" json:"caco3,omitempty"`
	MLSS            *float64 `gorm:"column:mlss" json:"mlss,omitempty"`
	Temperature     *float64 `gorm:"column:temperature" json:"temperature,omitempty"`
}

// MaxIDLength bounds record ids to what an indexed mysql varchar holds
const MaxIDLength = 191

// Measurement is a single field sample. ID is the only key used to
// deduplicate records across devices.
type Measurement struct {
	ID        string        `gorm:"primaryKey;size:191" json:"id"`
	Timestamp int64         `gorm:"index;not null" json:"timestamp"`
	Point     SamplingPoint `gorm:"index;size:64;not null" json:"point"`
	Readings  `gorm:"embedded"`
	Note      string  `gorm:"type:text" json:"note,omitempty"`
	Alerts    []Alert `gorm:"serializer:json;type:text" json:"alerts"`
	IsSynced  bool    `json:"isSynced"`
}

// TableName customizes the table name
func (Measurement) TableName() string {
	return "measurements"
}

// Time returns the collection instant
func (m Measurement) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// HasAlerts reports whether any threshold was violated
func (m Measurement) HasAlerts() bool {
	return len(m.Alerts) > 0
}

// NewID returns a fresh measurement identifier
func NewID() string {
	return uuid.NewString()
}

// SortHistory orders records newest first; equal timestamps are ordered by id
// so the result does not depend on input order.
func SortHistory(history []Measurement) {
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Timestamp != history[j].Timestamp {
			return history[i].Timestamp > history[j].Timestamp
		}
		return history[i].ID < history[j].ID
	})
}

// IDs returns the set of identifiers present in history
func IDs(history []Measurement) map[string]struct{} {
	ids := make(map[string]struct{}, len(history))
	for _, m := range history {
		ids[m.ID] = struct{}{}
	}
	return ids
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&Measurement{},
		&SyncSettings{},
	}
}

// measurementNamespace scopes deterministic ids derived from row content
var measurementNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("sbr_monitor.measurement"))

// DeterministicID derives a stable id from point and timestamp so that the
// same imported row always maps to the same record.
func DeterministicID(point SamplingPoint, timestamp int64) string {
	return uuid.NewSHA1(measurementNamespace, []byte(fmt.Sprintf("%s|%d", point, timestamp))).String()
}
