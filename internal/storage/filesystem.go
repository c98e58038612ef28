package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	tempDir   = "tmp"
	videosDir = "videos"
)

// FileStore persists rendered media onto the local filesystem and serves it
// under a public base URL. Temp files live under the same root so promotion
// is normally a single rename.
type FileStore struct {
	basePath      string
	publicBaseURL string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, publicBaseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	for _, dir := range []string{basePath, filepath.Join(basePath, tempDir), filepath.Join(basePath, videosDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s: %w", dir, err)
		}
	}
	return &FileStore{basePath: basePath, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// CreateTemp opens a new temporary media file inside the store.
func (s *FileStore) CreateTemp() (*os.File, error) {
	f, err := os.CreateTemp(filepath.Join(s.basePath, tempDir), "download-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("storage: create temp file: %w", err)
	}
	return f, nil
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// VideoKey is the permanent key for a shot's media.
func VideoKey(jobID string, shotID int, final bool) string {
	suffix := ""
	if final {
		suffix = "_final"
	}
	return fmt.Sprintf("%s/%s_%d%s.mp4", videosDir, jobID, shotID, suffix)
}

// Promote moves a downloaded temp file to its permanent key and returns the
// public URL. Readers never observe a partially written permanent file.
func (s *FileStore) Promote(ctx context.Context, jobID string, shotID int, tempPath string, final bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := sanitizeKey(VideoKey(jobID, shotID, final))
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) {
			return "", fmt.Errorf("storage: promote %s: %w", key, err)
		}
		// Source on another filesystem: copy next to dest, then rename.
		if err := copyThenRename(tempPath, dest); err != nil {
			return "", fmt.Errorf("storage: promote %s: %w", key, err)
		}
		_ = os.Remove(tempPath)
	}
	return s.PublicURL(key), nil
}

// PublicURL maps a storage key onto the public base URL.
func (s *FileStore) PublicURL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

func copyThenRename(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(partial, in); err != nil {
		partial.Close()
		os.Remove(partial.Name())
		return err
	}
	if err := partial.Close(); err != nil {
		os.Remove(partial.Name())
		return err
	}
	if err := os.Rename(partial.Name(), dest); err != nil {
		os.Remove(partial.Name())
		return err
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
