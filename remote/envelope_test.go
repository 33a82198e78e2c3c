package remote

import (
	"errors"
	"strings"
	"testing"

	"sbr_monitor/models"
)

func TestDecodeHistoryShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
		want  int
	}{
		{"bare array", `[{"id":"a","timestamp":1,"point":"SBR2","alerts":[]}]`, "", 1},
		{"empty array", `[]`, "", 0},
		{"padded", "  \n[]\n", "", 0},
		{"data envelope", `{"data":[{"id":"a","timestamp":1},{"id":"b","timestamp":2}]}`, "", 2},
		{"configured field", `{"items":[{"id":"a","timestamp":1}]}`, "items", 1},
		{"jsonbin record", `{"record":{"data":[{"id":"a","timestamp":1}]},"metadata":{"id":"x"}}`, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHistory([]byte(tt.body), tt.field)
			if err != nil {
				t.Fatalf("DecodeHistory: %v", err)
			}
			if got == nil {
				t.Fatal("history must be non-nil")
			}
			if len(got) != tt.want {
				t.Fatalf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDecodeHistoryMalformed(t *testing.T) {
	bodies := map[string]string{
		"empty":        ``,
		"null":         `null`,
		"number":       `42`,
		"string":       `"hello"`,
		"missing id":   `[{"timestamp":1}]`,
		"no array":     `{"foo":"bar"}`,
		"wrong type":   `[{"id":"a","timestamp":"yesterday"}]`,
		"deep nesting": `{"data":{"data":{"data":[]}}}`,
		"truncated":    `[{"id":"a"`,
		"id too long":  `[{"id":"` + strings.Repeat("x", models.MaxIDLength+1) + `","timestamp":1}]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeHistory([]byte(body), ""); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEncodeHistory(t *testing.T) {
	history := []models.Measurement{{ID: "a", Timestamp: 5, Point: models.PointSBR3, Alerts: []models.Alert{}}}

	bare, err := EncodeHistory(nil, "")
	if err != nil || string(bare) != "[]" {
		t.Fatalf("EncodeHistory(nil) = %s, %v", bare, err)
	}

	wrapped, err := EncodeHistory(history, "data")
	if err != nil {
		t.Fatalf("EncodeHistory: %v", err)
	}
	back, err := DecodeHistory(wrapped, "data")
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if len(back) != 1 || back[0].ID != "a" || back[0].Point != models.PointSBR3 {
		t.Fatalf("decoded %+v", back)
	}
}

func TestDecodeHistoryFillsMissingAlerts(t *testing.T) {
	body := `{"data":[{"id":"r1","timestamp":100,"point":"SBR2","ph":7,"isSynced":false},{"id":"r2","timestamp":50,"alerts":null}]}`

	got, err := DecodeHistory([]byte(body), "")
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	for _, m := range got {
		if m.Alerts == nil {
			t.Fatalf("record %s has nil alerts", m.ID)
		}
	}

	out, err := EncodeHistory(got, "")
	if err != nil {
		t.Fatalf("EncodeHistory: %v", err)
	}
	if strings.Contains(string(out), `"alerts":null`) || strings.Count(string(out), `"alerts":[]`) != 2 {
		t.Fatalf("re-encoded history = %s", out)
	}
}

func TestDecodeHistoryAcceptsMaxLengthID(t *testing.T) {
	id := strings.Repeat("x", models.MaxIDLength)
	got, err := DecodeHistory([]byte(`[{"id":"`+id+`","timestamp":1}]`), "")
	if err != nil || len(got) != 1 || got[0].ID != id {
		t.Fatalf("DecodeHistory = %v, %v", got, err)
	}
}
