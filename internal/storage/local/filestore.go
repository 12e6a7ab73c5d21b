// Package local implements the document archive on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local document archive.
type Config struct {
	// BaseDir is the root directory the archive lives under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// FileStore writes downloaded documents under a single root directory.
// Stored paths stay relative so the archive can be relocated.
type FileStore struct {
	baseDir string
}

// New creates a filesystem-backed document store rooted at cfg.BaseDir.
func New(cfg Config) (*FileStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &FileStore{baseDir: cfg.BaseDir}, nil
}

// resolve joins relPath under the base directory, rejecting anything that
// would escape it.
func (s *FileStore) resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(relPath))
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFull, nil
}

// Write stores data at relPath under the archive root and returns the
// relative path that was written.
func (s *FileStore) Write(_ context.Context, relPath string, data []byte) (string, error) {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Write to a sibling temp file then rename so readers never see a
	// half-written document.
	tmp := fullPath + ".partial"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize file: %w", err)
	}

	return relPath, nil
}

// Exists reports whether a regular file is present at relPath.
func (s *FileStore) Exists(relPath string) bool {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the file stored at relPath.
func (s *FileStore) Read(relPath string) ([]byte, error) {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
