// Package storage defines the durable object storage boundary and its
// implementations. Keys are deterministic so repeated uploads of the same
// object are overwrite-safe no-ops.
package storage

import (
	"context"
	"io"
	"path"
)

// ObjectStore is the durable storage boundary the pipeline writes through.
type ObjectStore interface {
	// Put stores an object under key. Implementations must be
	// overwrite-safe: putting the same key twice is not an error.
	Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error

	// Exists reports whether an object is already durably stored.
	Exists(ctx context.Context, key string) (bool, error)
}

// MetadataKey returns the key of the per-app flows document.
func MetadataKey(prefix, appID string) string {
	return path.Join(prefix, appID, appID+"_flows.json")
}

// AssetKey returns the key of one extracted file, relative path preserved.
func AssetKey(prefix, appID, flowID, relPath string) string {
	return path.Join(prefix, appID, "extracted", flowID, relPath)
}

// ArchiveKey returns the key of the original downloaded archive.
func ArchiveKey(prefix, appID, flowID string) string {
	return path.Join(prefix, appID, "zips", flowID+".zip")
}
