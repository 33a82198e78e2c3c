package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinSyncIDLength rejects empty and near-empty identifiers before any network call
const MinSyncIDLength = 4

// SyncSettings is the per-device sync configuration. It is stored as a single
// row and is only ever reset, never deleted.
type SyncSettings struct {
	ID              uint   `gorm:"primaryKey" json:"-"`
	SyncID          string `gorm:"size:128" json:"syncId"`
	AutoSyncEnabled bool   `json:"autoSyncEnabled"`
	LastSync        *int64 `json:"lastSync,omitempty"`
}

// TableName customizes the table name
func (SyncSettings) TableName() string {
	return "sync_settings"
}

// Enabled reports whether a usable sync identifier is configured
func (s SyncSettings) Enabled() bool {
	return ValidSyncID(s.SyncID)
}

// LastSyncTime returns the last successful push, or the zero time
func (s SyncSettings) LastSyncTime() time.Time {
	if s.LastSync == nil {
		return time.Time{}
	}
	return time.UnixMilli(*s.LastSync)
}

// WithLastSync returns a copy with LastSync set to t
func (s SyncSettings) WithLastSync(t time.Time) SyncSettings {
	ms := t.UnixMilli()
	s.LastSync = &ms
	return s
}

// NormalizeSyncID trims id and drops characters outside [A-Za-z0-9_-]
func NormalizeSyncID(id string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidSyncID reports whether id is long enough to address a remote document
func ValidSyncID(id string) bool {
	return len(id) >= MinSyncIDLength
}

// GenerateSyncID returns a short operator-readable identifier such as SBR-3F9A1C
func GenerateSyncID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SBR-" + strings.ToUpper(raw[:6])
}
