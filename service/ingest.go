// Package service coordinates the blob store, the analyzer and the metadata
// repository. Ingestion is the one multi-resource sequence in the system;
// there is no transaction spanning disk and database, so consistency rests
// on the ordering here: write blob, analyze, persist, compensate on failure.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/snapindex/snapindex/analyzer"
	"github.com/snapindex/snapindex/models"
	"github.com/snapindex/snapindex/repository"
	"github.com/snapindex/snapindex/storage"
)

// ErrEmptyName rejects uploads without a usable display name.
var ErrEmptyName = errors.New("original filename must not be empty")

// WarningDegraded is attached to upload responses when analysis failed and
// the asset was stored with the sentinel tag instead.
const WarningDegraded = "image analysis unavailable, stored without tags"

// BlobStore is the slice of the blob store the services need.
type BlobStore interface {
	Put(r io.Reader, suggestedName, mimeType string) (string, error)
	Delete(key string) (bool, error)
	MaxBytes() int64
}

// Analyzer is a single-attempt image classifier.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, filename, mimeType string) (*analyzer.Result, error)
}

// ImageStore is the metadata repository surface used by the services.
type ImageStore interface {
	Create(ctx context.Context, draft repository.Draft) (*models.ImageAsset, error)
	FindByID(ctx context.Context, id uint) (*models.ImageAsset, error)
	List(ctx context.Context, f repository.Filter, page, limit int) ([]models.ImageAsset, int64, error)
	DistinctTags(ctx context.Context) ([]string, error)
	ReplaceTags(ctx context.Context, id uint, newTags []string) (*models.ImageAsset, error)
	Delete(ctx context.Context, id uint) (bool, error)
}

// Upload carries one incoming file: its byte stream plus the declared
// name, size and content type from the transport.
type Upload struct {
	Reader       io.Reader
	OriginalName string
	Size         int64
	MimeType     string
}

type Ingestor struct {
	store    BlobStore
	analyzer Analyzer
	repo     ImageStore
	log      *slog.Logger
}

func NewIngestor(store BlobStore, az Analyzer, repo ImageStore, log *slog.Logger) *Ingestor {
	return &Ingestor{store: store, analyzer: az, repo: repo, log: log}
}

// Ingest runs the upload pipeline. Validation failures happen before any
// side effect. Analysis failure is never fatal: the asset is stored with the
// sentinel tag and the returned warning is set. If the metadata write fails
// the blob written earlier is deleted best-effort, so a failed upload leaves
// no trace.
func (ing *Ingestor) Ingest(ctx context.Context, up Upload) (*models.ImageAsset, string, error) {
	if up.OriginalName == "" {
		return nil, "", ErrEmptyName
	}
	if !storage.IsAllowedType(up.MimeType) {
		return nil, "", storage.ErrUnsupportedType
	}
	if up.Size > ing.store.MaxBytes() {
		return nil, "", storage.ErrTooLarge
	}

	// The analyzer needs the full payload anyway, so buffer it once and
	// check the real size regardless of what the client declared.
	data, err := io.ReadAll(io.LimitReader(up.Reader, ing.store.MaxBytes()+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > ing.store.MaxBytes() {
		return nil, "", storage.ErrTooLarge
	}

	key, err := ing.store.Put(bytes.NewReader(data), up.OriginalName, up.MimeType)
	if err != nil {
		return nil, "", err
	}

	tags := []string{models.TagUnanalyzed}
	var confidence map[string]float64
	var warning string

	result, err := ing.analyzer.Analyze(ctx, data, up.OriginalName, up.MimeType)
	if err != nil {
		// Degrade, never fail: ingestion availability must not depend on
		// the analyzer.
		warning = WarningDegraded
		ing.log.Warn("image analysis failed, storing unanalyzed",
			"file", up.OriginalName, "error", err)
	} else {
		tags = result.Tags
		confidence = result.Confidence
	}

	asset, err := ing.repo.Create(ctx, repository.Draft{
		StorageKey:   key,
		OriginalName: up.OriginalName,
		FileSize:     int64(len(data)),
		MimeType:     up.MimeType,
		Tags:         tags,
		Confidence:   confidence,
	})
	if err != nil {
		// No record, no orphan blob. Cleanup failure is logged but must not
		// mask the persistence error.
		if _, delErr := ing.store.Delete(key); delErr != nil {
			ing.log.Error("blob cleanup after failed persist",
				"key", key, "error", delErr)
		}
		return nil, "", err
	}

	return asset, warning, nil
}
