package handler

import (
	"encoding/json"
	"errors"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/snapindex/snapindex/middleware"
	"github.com/snapindex/snapindex/models"
	"github.com/snapindex/snapindex/repository"
	"github.com/snapindex/snapindex/service"
	"github.com/snapindex/snapindex/storage"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type ImageHandler struct {
	ingestor *service.Ingestor
	queries  *service.Queries
}

func NewImageHandler(ingestor *service.Ingestor, queries *service.Queries) *ImageHandler {
	return &ImageHandler{ingestor: ingestor, queries: queries}
}

// Upload ingests the file validated by the upload middleware. Analysis
// failure still yields 200, with a warning field.
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	file, ok := c.Locals(middleware.UploadFileKey).(*multipart.FileHeader)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}

	blobFile, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Upload failed",
			"details": err.Error(),
		})
	}
	defer blobFile.Close()

	asset, warning, err := h.ingestor.Ingest(c.UserContext(), service.Upload{
		Reader:       blobFile,
		OriginalName: file.Filename,
		Size:         file.Size,
		MimeType:     file.Header.Get("Content-Type"),
	})
	if err != nil {
		return uploadError(c, err)
	}

	resp := fiber.Map{
		"success": true,
		"image":   imagePayload(asset),
		"message": "Image uploaded and analyzed",
	}
	if warning != "" {
		resp["message"] = "Image uploaded"
		resp["warning"] = warning
	}
	return c.JSON(resp)
}

// List serves GET /api/images with tag/search filters and pagination.
func (h *ImageHandler) List(c *fiber.Ctx) error {
	filter := repository.Filter{
		Tag:    c.Query("tag"),
		Search: c.Query("search"),
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultPageLimit)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, total, err := h.queries.List(c.UserContext(), filter, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch images",
		})
	}

	images := make([]fiber.Map, 0, len(items))
	for i := range items {
		images = append(images, imagePayload(&items[i]))
	}

	pages := (total + int64(limit) - 1) / int64(limit)

	return c.JSON(fiber.Map{
		"images": images,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}

// Tags serves GET /api/tags: every label in use, sorted, sentinel excluded.
func (h *ImageHandler) Tags(c *fiber.Ctx) error {
	tags, err := h.queries.Tags(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tags",
		})
	}
	return c.JSON(tags)
}

// GetByID serves GET /api/images/:id.
func (h *ImageHandler) GetByID(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}

	asset, err := h.queries.Get(c.UserContext(), uint(id))
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch image",
		})
	}

	return c.JSON(imagePayload(asset))
}

// Delete serves DELETE /api/images/:id.
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}

	err = h.queries.Delete(c.UserContext(), uint(id))
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete image",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Image deleted successfully",
	})
}

// UpdateTags serves PUT /api/images/:id/tags.
func (h *ImageHandler) UpdateTags(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}

	var body struct {
		Tags json.RawMessage `json:"tags"`
	}
	if err := c.BodyParser(&body); err != nil || body.Tags == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tags must be an array",
		})
	}

	var tags []string
	if err := json.Unmarshal(body.Tags, &tags); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tags must be an array",
		})
	}

	asset, err := h.queries.UpdateTags(c.UserContext(), uint(id), tags)
	switch {
	case errors.Is(err, repository.ErrEmptyTags):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tags must not be empty",
		})
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update tags",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Tags updated successfully",
		"image":   imagePayload(asset),
	})
}

func uploadError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, service.ErrEmptyName):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Upload failed",
			"details": err.Error(),
		})
	}
}

// imagePayload is the wire shape of one asset.
func imagePayload(a *models.ImageAsset) fiber.Map {
	return fiber.Map{
		"id":           a.ID,
		"filename":     a.StorageKey,
		"originalName": a.OriginalName,
		"url":          "/uploads/" + a.StorageKey,
		"tags":         a.TagLabels(),
		"confidence":   a.ConfidenceMap(),
		"fileSize":     a.FileSize,
		"mimeType":     a.MimeType,
		"uploadDate":   a.CreatedAt,
	}
}
