// Package media persists audio and image payloads into Anki's media
// collection and answers queries about it.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/apperr"
)

const maxFileSize = 50 << 20 // 50 MB

var safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Helper stores and retrieves media files through the AnkiConnect client.
type Helper struct {
	client *anki.Client
}

// NewHelper creates a media helper backed by the given client.
func NewHelper(client *anki.Client) *Helper {
	return &Helper{client: client}
}

// SaveBase64 validates and stores an already-encoded payload. Returns
// the filename the store actually used.
func (h *Helper) SaveBase64(ctx context.Context, filename, data string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: filename is required", apperr.ErrInvalidInput)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("%w: payload is not valid base64: %v", apperr.ErrInvalidInput, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: payload is empty", apperr.ErrInvalidInput)
	}
	if len(raw) > maxFileSize {
		return "", fmt.Errorf("%w: payload is %d bytes (max %d)", apperr.ErrInvalidInput, len(raw), maxFileSize)
	}
	return h.client.StoreMediaFile(ctx, SanitizeFilename(filename), data)
}

// SaveBytes encodes raw bytes and stores them.
func (h *Helper) SaveBytes(ctx context.Context, filename string, data []byte) (string, error) {
	return h.SaveBase64(ctx, filename, base64.StdEncoding.EncodeToString(data))
}

// SaveFromFile reads a local file and stores its contents. When filename
// is empty the base name of the source path is used.
func (h *Helper) SaveFromFile(ctx context.Context, filename, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read media file %s: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("%w: file is %d bytes (max %d)", apperr.ErrInvalidInput, info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read media file %s: %w", path, err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	return h.SaveBytes(ctx, filename, data)
}

// List returns media filenames matching the glob pattern ("*" for all).
func (h *Helper) List(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	return h.client.MediaFileNames(ctx, pattern)
}

// Exists reports whether a file with exactly this name is present.
func (h *Helper) Exists(ctx context.Context, filename string) (bool, error) {
	names, err := h.client.MediaFileNames(ctx, filename)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == filename {
			return true, nil
		}
	}
	return false, nil
}

// Retrieve returns the base64 contents of a stored file.
func (h *Helper) Retrieve(ctx context.Context, filename string) (string, error) {
	data, ok, err := h.client.RetrieveMediaFile(ctx, filename)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("media file %q: %w", filename, apperr.ErrNotFound)
	}
	return data, nil
}

// Dir returns the absolute path of the media collection directory.
func (h *Helper) Dir(ctx context.Context) (string, error) {
	return h.client.MediaDirPath(ctx)
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// SoundTag wraps a media filename in the [sound:...] form that Anki's
// renderer plays back.
func SoundTag(filename string) string {
	return "[sound:" + filename + "]"
}
