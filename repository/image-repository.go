// Package repository is the durable record store for image assets and the
// single source of truth for whether an asset exists.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/snapindex/snapindex/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no asset exists for the given id.
	ErrNotFound = errors.New("image not found")

	// ErrEmptyTags is returned when a tag replacement would leave an asset
	// with no tags.
	ErrEmptyTags = errors.New("tags must not be empty")
)

// WildcardTag matches every asset when used as a tag filter.
const WildcardTag = "all"

// Filter narrows a listing. Tag restricts to assets carrying that exact
// label; Search matches the original name or any label, case-insensitive
// substring. Both compose with AND.
type Filter struct {
	Tag    string
	Search string
}

// Draft holds the caller-supplied fields of a new asset; id and timestamps
// are assigned on create.
type Draft struct {
	StorageKey   string
	OriginalName string
	FileSize     int64
	MimeType     string
	Tags         []string
	Confidence   map[string]float64
}

type ImageRepository struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create persists a new asset and returns the full record.
func (r *ImageRepository) Create(ctx context.Context, draft Draft) (*models.ImageAsset, error) {
	labels := normalizeLabels(draft.Tags)
	if len(labels) == 0 {
		return nil, ErrEmptyTags
	}

	asset := models.ImageAsset{
		StorageKey:   draft.StorageKey,
		OriginalName: draft.OriginalName,
		FileSize:     draft.FileSize,
		MimeType:     draft.MimeType,
		Tags:         make([]models.ImageTag, 0, len(labels)),
	}
	for _, label := range labels {
		tag := models.ImageTag{Label: label}
		if score, ok := draft.Confidence[label]; ok {
			s := score
			tag.Confidence = &s
		}
		asset.Tags = append(asset.Tags, tag)
	}

	if err := r.db.WithContext(ctx).Create(&asset).Error; err != nil {
		return nil, fmt.Errorf("creating image record: %w", err)
	}

	return &asset, nil
}

// FindByID loads one asset with its tags. Returns ErrNotFound when absent.
func (r *ImageRepository) FindByID(ctx context.Context, id uint) (*models.ImageAsset, error) {
	var asset models.ImageAsset
	err := r.db.WithContext(ctx).Preload("Tags").First(&asset, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading image %d: %w", id, err)
	}
	return &asset, nil
}

// List returns one page of assets matching the filter plus the total
// filtered count. Pages are 1-based; ordering is newest first with id as the
// tie-breaker so pagination stays deterministic. Pages past the end come
// back empty with the total still accurate.
func (r *ImageRepository) List(ctx context.Context, f Filter, page, limit int) ([]models.ImageAsset, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting images: %w", err)
	}

	var items []models.ImageAsset
	err := r.filtered(ctx, f).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Preload("Tags").
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing images: %w", err)
	}

	return items, total, nil
}

// DistinctTags returns every label in use, ascending, with the sentinel
// "unanalyzed" excluded.
func (r *ImageRepository) DistinctTags(ctx context.Context) ([]string, error) {
	tags := []string{}
	err := r.db.WithContext(ctx).
		Model(&models.ImageTag{}).
		Distinct("label").
		Where("label <> ?", models.TagUnanalyzed).
		Order("label ASC").
		Pluck("label", &tags).Error
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

// ReplaceTags swaps an asset's tag set wholesale. Confidence survives for
// labels that remain and disappears with the labels that are removed; it is
// never recomputed. An empty replacement set is rejected and leaves the
// record untouched.
func (r *ImageRepository) ReplaceTags(ctx context.Context, id uint, newTags []string) (*models.ImageAsset, error) {
	labels := normalizeLabels(newTags)
	if len(labels) == 0 {
		return nil, ErrEmptyTags
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset models.ImageAsset
		if err := tx.Preload("Tags").First(&asset, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		kept := make(map[string]*float64, len(asset.Tags))
		for _, t := range asset.Tags {
			kept[t.Label] = t.Confidence
		}

		if err := tx.Where("image_asset_id = ?", id).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}

		rows := make([]models.ImageTag, 0, len(labels))
		for _, label := range labels {
			rows = append(rows, models.ImageTag{
				ImageAssetID: id,
				Label:        label,
				Confidence:   kept[label],
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		return tx.Model(&models.ImageAsset{ID: id}).Update("updated_at", tx.NowFunc()).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating tags for image %d: %w", id, err)
	}

	return r.FindByID(ctx, id)
}

// Delete removes an asset and its tags. Returns false when the id was
// already absent.
func (r *ImageRepository) Delete(ctx context.Context, id uint) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_asset_id = ?", id).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.ImageAsset{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting image %d: %w", id, err)
	}
	return deleted, nil
}

func (r *ImageRepository) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.ImageAsset{})

	if f.Tag != "" && f.Tag != WildcardTag {
		q = q.Where("id IN (?)", r.db.Model(&models.ImageTag{}).
			Select("image_asset_id").
			Where("label = ?", f.Tag))
	}

	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(original_name) LIKE ? OR id IN (?)", pattern,
			r.db.Model(&models.ImageTag{}).
				Select("image_asset_id").
				Where("LOWER(label) LIKE ?", pattern))
	}

	return q
}

// normalizeLabels trims whitespace, drops empties and collapses duplicates
// while keeping first-seen order.
func normalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}
