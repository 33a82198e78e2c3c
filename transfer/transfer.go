// Package transfer moves a measurement history between devices without the
// remote service: JSON files, compact share codes and QR images.
package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"sbr_monitor/models"
	"sbr_monitor/remote"

	"github.com/golang/snappy"
	"github.com/skip2/go-qrcode"
)

// SharePrefix marks a share code: base64url of snappy-compressed JSON
const SharePrefix = "SBR1:"

// ErrInvalidFormat is returned for import content that is not a history
var ErrInvalidFormat = errors.New("invalid import format")

// Merger merges records into the local history and reports how many were new
type Merger interface {
	MergeLocal(ctx context.Context, incoming []models.Measurement) (int, error)
}

// ExportJSON writes history as an indented JSON array
func ExportJSON(w io.Writer, history []models.Measurement) error {
	if history == nil {
		history = []models.Measurement{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(history); err != nil {
		return fmt.Errorf("failed to export history: %w", err)
	}
	return nil
}

// EncodeShareCode packs history into a single line that can be pasted or
// shown as a QR code
func EncodeShareCode(history []models.Measurement) (string, error) {
	raw, err := remote.EncodeHistory(history, "")
	if err != nil {
		return "", fmt.Errorf("failed to encode history: %w", err)
	}
	return SharePrefix + base64.RawURLEncoding.EncodeToString(snappy.Encode(nil, raw)), nil
}

// DecodePayload accepts exported JSON (bare or wrapped), a share code, or
// base64 of exported JSON, and returns the contained history.
func DecodePayload(data []byte) ([]models.Measurement, error) {
	text := bytes.TrimSpace(data)
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidFormat)
	}

	var raw []byte
	switch {
	case bytes.HasPrefix(text, []byte(SharePrefix)):
		packed, err := decodeBase64(string(text[len(SharePrefix):]))
		if err != nil {
			return nil, fmt.Errorf("%w: share code: %v", ErrInvalidFormat, err)
		}
		raw, err = snappy.Decode(nil, packed)
		if err != nil {
			return nil, fmt.Errorf("%w: share code: %v", ErrInvalidFormat, err)
		}
	case text[0] == '[' || text[0] == '{':
		raw = text
	default:
		decoded, err := decodeBase64(string(text))
		if err != nil {
			return nil, fmt.Errorf("%w: neither JSON nor base64", ErrInvalidFormat)
		}
		raw = decoded
	}

	history, err := remote.DecodeHistory(raw, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return history, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	encodings := []*base64.Encoding{
		base64.RawURLEncoding, base64.URLEncoding,
		base64.StdEncoding, base64.RawStdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Import decodes data and merges it into the local history. Invalid input is
// rejected before anything is written.
func Import(ctx context.Context, m Merger, data []byte) (int, error) {
	history, err := DecodePayload(data)
	if err != nil {
		return 0, err
	}
	return m.MergeLocal(ctx, history)
}

// WriteSyncIDQR renders the sync identifier as a PNG QR code
func WriteSyncIDQR(w io.Writer, syncID string, size int) error {
	if !models.ValidSyncID(syncID) {
		return fmt.Errorf("%w: %q", remote.ErrInvalidID, syncID)
	}
	if size <= 0 {
		size = 256
	}
	qr, err := qrcode.New(syncID, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to build QR code: %w", err)
	}
	return qr.Write(size, w)
}
