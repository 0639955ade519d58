package middleware

import (
	"fmt"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/snapindex/snapindex/storage"
)

// UploadFileKey is where the validated file header is stored for the handler.
const UploadFileKey = "uploadFile"

// UploadField is the required multipart field name.
const UploadField = "image"

// Upload validates the multipart submission before the ingestion pipeline
// runs: exactly one file, in the "image" field, within the size limit, with
// an image content type. Violations are client errors and never reach the
// orchestrator.
func Upload(maxBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "No file uploaded",
			})
		}

		files := form.File[UploadField]
		if len(files) == 0 {
			if otherFileField(form) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": fmt.Sprintf("Unexpected field name. Use %q as field name.", UploadField),
				})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "No file uploaded",
			})
		}
		if len(files) > 1 || otherFileField(form) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Too many files. Only one file allowed.",
			})
		}

		file := files[0]
		if file.Size > maxBytes {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("File too large. Maximum size is %dMB.", maxBytes/(1024*1024)),
			})
		}
		if !storage.IsAllowedType(file.Header.Get("Content-Type")) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Only image files are allowed!",
			})
		}

		c.Locals(UploadFileKey, file)
		return c.Next()
	}
}

func otherFileField(form *multipart.Form) bool {
	for field, files := range form.File {
		if field != UploadField && len(files) > 0 {
			return true
		}
	}
	return false
}
