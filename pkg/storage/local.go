package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes objects into a directory tree. It is the fallback
// when no bucket is configured and doubles as a development target.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed object store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local store directory: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the object atomically: temp file first, then rename, so a
// concurrent Exists never observes a half-written object.
func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tempPath := target + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}

	_, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write object data: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close object file: %w", closeErr)
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize object file: %w", err)
	}

	if len(metadata) > 0 || contentType != "" {
		if err := s.writeSidecar(target, contentType, metadata); err != nil {
			return err
		}
	}
	return nil
}

// writeSidecar records content type and metadata next to the object.
func (s *LocalStore) writeSidecar(target, contentType string, metadata map[string]string) error {
	sidecar := struct {
		ContentType string            `json:"content_type,omitempty"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}{ContentType: contentType, Metadata: metadata}

	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal object metadata: %w", err)
	}
	if err := os.WriteFile(target+".meta.json", data, 0644); err != nil {
		return fmt.Errorf("failed to write object metadata: %w", err)
	}
	return nil
}

// Exists checks for the object file.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	target, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
