// Package remote talks to the hosted JSON document that devices share as
// their common measurement history. Providers differ in URL layout and
// envelope shape; callers only ever see a bare []models.Measurement.
package remote

import (
	"context"
	"errors"
	"fmt"

	"sbr_monitor/config"
	"sbr_monitor/models"
)

var (
	// ErrNotFound is returned by ReadDocument for any failure: unknown id,
	// transport error or a payload that is not a measurement array.
	ErrNotFound = errors.New("remote document not found or unavailable")
	// ErrUnavailable is returned when a create or write was not accepted
	ErrUnavailable = errors.New("remote document service unavailable")
	// ErrInvalidID is returned before any request for empty or near-empty ids
	ErrInvalidID = errors.New("invalid sync identifier")
)

// DocumentClient creates, overwrites and fetches whole remote documents.
// Writes are unconditional: the last writer wins.
type DocumentClient interface {
	CreateDocument(ctx context.Context) (string, error)
	WriteDocument(ctx context.Context, id string, history []models.Measurement) error
	ReadDocument(ctx context.Context, id string) ([]models.Measurement, error)
}

// ValidateID rejects identifiers too short to address a document
func ValidateID(id string) error {
	if !models.ValidSyncID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// New builds the client for the configured provider
func New(ctx context.Context, cfg config.SyncConfig) (DocumentClient, error) {
	switch cfg.Provider {
	case "http", "":
		return NewHTTPClient(cfg.HTTP, cfg.RequestTimeout(), cfg.CreateRetry), nil
	case "s3":
		return NewS3Client(ctx, cfg.S3, cfg.CreateRetry)
	default:
		return nil, fmt.Errorf("unsupported sync provider: %s", cfg.Provider)
	}
}
