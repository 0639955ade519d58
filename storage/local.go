// Package storage provides the local-disk blob store backing uploaded
// images. Blobs are written atomically (temp file + rename) under
// collision-free generated names, so concurrent uploads of identically
// named files never clash.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tempDirName = ".tmp"

var (
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file exceeds maximum allowed size")

	// ErrUnsupportedType is returned for content types outside the image allow-list.
	ErrUnsupportedType = errors.New("unsupported content type, only images are allowed")

	// ErrInvalidKey is returned for storage keys that are empty or contain
	// path components.
	ErrInvalidKey = errors.New("invalid storage key")
)

// allowedTypes maps accepted image content types to their canonical extension.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsAllowedType reports whether the content type is on the image allow-list.
func IsAllowedType(mimeType string) bool {
	_, ok := allowedTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

// LocalStore stores blobs as flat files under a root directory.
type LocalStore struct {
	root     string
	maxBytes int64
}

// NewLocalStore creates the root and scratch directories if needed.
func NewLocalStore(root string, maxBytes int64) (*LocalStore, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	return &LocalStore{root: root, maxBytes: maxBytes}, nil
}

// Root returns the directory blobs are stored under.
func (s *LocalStore) Root() string {
	return s.root
}

// MaxBytes returns the configured per-blob size limit.
func (s *LocalStore) MaxBytes() int64 {
	return s.maxBytes
}

// Put streams r into a new blob and returns its storage key. The suggested
// name contributes only its extension; the key itself is generated, so two
// concurrent uploads of "cat.jpg" get distinct blobs. The write happens in a
// scratch file first and is renamed into place only once fully read, so a
// failed or oversized upload never leaves a partial blob behind.
func (s *LocalStore) Put(r io.Reader, suggestedName, mimeType string) (string, error) {
	if !IsAllowedType(mimeType) {
		return "", ErrUnsupportedType
	}

	key := generateKey(suggestedName, mimeType)

	tmp, err := os.CreateTemp(filepath.Join(s.root, tempDirName), "upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Read one byte past the limit to tell "exactly at" from "over".
	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if n > s.maxBytes {
		os.Remove(tmpName)
		return "", ErrTooLarge
	}

	if err := os.Rename(tmpName, filepath.Join(s.root, key)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storing blob: %w", err)
	}

	return key, nil
}

// Delete removes a blob. It returns false, nil when the blob was already
// absent; a missing target is not an error.
func (s *LocalStore) Delete(key string) (bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return false, err
	}

	err = os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return true, nil
}

// Path resolves a storage key to its location on disk.
func (s *LocalStore) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key), nil
}

// Exists reports whether the blob is present on disk.
func (s *LocalStore) Exists(key string) bool {
	path, err := s.Path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// validateKey rejects keys that could escape the root directory.
func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || key != filepath.Base(key) || key == "." || key == ".." {
		return ErrInvalidKey
	}
	return nil
}

// generateKey builds a collision-free blob name, keeping a sanitized
// extension from the caller's filename so served files keep a sensible type.
func generateKey(suggestedName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(suggestedName)))
	if !allowedExtensions[ext] {
		ext = allowedTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	}
	return uuid.NewString() + ext
}
