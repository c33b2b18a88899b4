// Package storage defines the object storage contract used for uploaded fleet documents
// (insurance policies, ITV certificates, contracts) and for the audit archive.
//
// Backends live in sub-packages and register themselves with the factory from init():
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so that NewStorage can resolve
// storage.default_backend at startup.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned (wrapped) by Download and GetMetadata when no object exists at key.
var ErrNotFound = errors.New("object not found")

// Storage is implemented by every backend. Keys are slash-separated and relative to the
// backend's root (bucket, container or base directory).
type Storage interface {
	// Upload stores the object and returns its size and SHA-256 checksum
	Upload(ctx context.Context, key string, reader io.Reader, size int64) (*UploadResult, error)

	// Download opens the object for reading; the caller closes it
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored at key
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns size, checksum and modification time without reading the object
	// when the backend stores the checksum alongside it
	GetMetadata(ctx context.Context, key string) (*FileMetadata, error)
}

// UploadResult describes a stored object
type UploadResult struct {
	Key      string
	Size     int64
	Checksum string // hex SHA-256
}

// FileMetadata describes an object without its content
type FileMetadata struct {
	Key          string
	Size         int64
	Checksum     string
	LastModified time.Time
}

// ChecksumMetadataKey is the object metadata entry cloud backends store the checksum under.
const ChecksumMetadataKey = "sha256"

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumReader hashes r to EOF.
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
