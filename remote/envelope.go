package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"sbr_monitor/models"
)

// ErrMalformed means a payload decoded but is not a measurement array
var ErrMalformed = errors.New("payload is not a measurement history")

// envelopeFields are the wrapper keys seen across providers, tried after the
// configured one
var envelopeFields = []string{"data", "record", "measurements", "history"}

const maxEnvelopeDepth = 2

// DecodeHistory accepts a bare JSON array of measurements, or an object that
// wraps the array under field or one of the known wrapper keys. Records
// without alerts get an empty alert list.
func DecodeHistory(data []byte, field string) ([]models.Measurement, error) {
	return decodeHistory(bytes.TrimSpace(data), field, 0)
}

func decodeHistory(data []byte, field string, depth int) ([]models.Measurement, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	switch data[0] {
	case '[':
		var history []models.Measurement
		if err := json.Unmarshal(data, &history); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for i := range history {
			if history[i].ID == "" {
				return nil, fmt.Errorf("%w: record %d has no id", ErrMalformed, i)
			}
			if len(history[i].ID) > models.MaxIDLength {
				return nil, fmt.Errorf("%w: record %d id longer than %d bytes", ErrMalformed, i, models.MaxIDLength)
			}
			if history[i].Alerts == nil {
				history[i].Alerts = []models.Alert{}
			}
		}
		if history == nil {
			history = []models.Measurement{}
		}
		return history, nil
	case '{':
		if depth >= maxEnvelopeDepth {
			return nil, fmt.Errorf("%w: envelope nested too deep", ErrMalformed)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		keys := envelopeFields
		if field != "" {
			keys = append([]string{field}, envelopeFields...)
		}
		for _, k := range keys {
			if raw, ok := obj[k]; ok {
				return decodeHistory(bytes.TrimSpace(raw), field, depth+1)
			}
		}
		return nil, fmt.Errorf("%w: no measurement array in object", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrMalformed, data[0])
	}
}

// EncodeHistory serializes history as a bare array, or wrapped under field
func EncodeHistory(history []models.Measurement, field string) ([]byte, error) {
	if history == nil {
		history = []models.Measurement{}
	}
	if field == "" {
		return json.Marshal(history)
	}
	return json.Marshal(map[string][]models.Measurement{field: history})
}
