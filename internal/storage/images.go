// Package storage provides the boundary to per-mission image data. Scaling
// and serving of the images is handled by the web interface; this server
// only stores uploads and checks for existence.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ImageStore abstracts mission image persistence for the mission service.
type ImageStore interface {
	// Save stores raw JPEG bytes under the given name for a mission.
	Save(eid int64, name string, data []byte) error
	// Exists reports whether an image with the given name is present.
	Exists(eid int64, name string) bool
}

// FilesystemImageStore stores images under <base>/data/<eid>/<name>.jpg,
// the layout the web interface reads from.
type FilesystemImageStore struct {
	base string
}

// NewFilesystemImageStore creates a FilesystemImageStore rooted at base.
func NewFilesystemImageStore(base string) *FilesystemImageStore {
	return &FilesystemImageStore{base: base}
}

func (s *FilesystemImageStore) path(eid int64, name string) string {
	return filepath.Join(s.base, "data", strconv.FormatInt(eid, 10), name+".jpg")
}

// Save writes the image, creating the mission directory if needed.
func (s *FilesystemImageStore) Save(eid int64, name string, data []byte) error {
	path := s.path(eid, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create mission data dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// Exists reports whether the image file is present on disk.
func (s *FilesystemImageStore) Exists(eid int64, name string) bool {
	_, err := os.Stat(s.path(eid, name))
	return err == nil
}
