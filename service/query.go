package service

import (
	"context"
	"log/slog"

	"github.com/snapindex/snapindex/models"
	"github.com/snapindex/snapindex/repository"
)

// Queries serves the read/update/delete side. Reads and tag updates touch
// only the metadata repository; delete also reclaims the blob.
type Queries struct {
	repo  ImageStore
	store BlobStore
	log   *slog.Logger
}

func NewQueries(repo ImageStore, store BlobStore, log *slog.Logger) *Queries {
	return &Queries{repo: repo, store: store, log: log}
}

func (q *Queries) Get(ctx context.Context, id uint) (*models.ImageAsset, error) {
	return q.repo.FindByID(ctx, id)
}

func (q *Queries) List(ctx context.Context, f repository.Filter, page, limit int) ([]models.ImageAsset, int64, error) {
	return q.repo.List(ctx, f, page, limit)
}

func (q *Queries) Tags(ctx context.Context) ([]string, error) {
	return q.repo.DistinctTags(ctx)
}

// Delete removes an asset and its blob. The metadata record decides
// existence, so its removal determines the outcome; a blob that is already
// gone (or fails to delete) is logged and never blocks the record delete.
func (q *Queries) Delete(ctx context.Context, id uint) error {
	asset, err := q.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := q.store.Delete(asset.StorageKey); err != nil {
		q.log.Warn("blob delete failed, removing record anyway",
			"key", asset.StorageKey, "error", err)
	}

	deleted, err := q.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		// Lost a race with a concurrent delete.
		return repository.ErrNotFound
	}
	return nil
}

// UpdateTags replaces the asset's tag set. It never touches the blob and
// never re-runs analysis.
func (q *Queries) UpdateTags(ctx context.Context, id uint, tags []string) (*models.ImageAsset, error) {
	return q.repo.ReplaceTags(ctx, id, tags)
}
