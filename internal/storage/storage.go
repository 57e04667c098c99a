// Package storage provides file storage abstraction for PixelProof.
//
// This package defines a Storage interface with implementations for:
// - LocalStorage: File system storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) storage for production
//
// The storage service persists uploaded screenshots and generated QA reports
// with automatic content type detection and validation.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for comparison artifact storage.
//
// Implementations:
// - LocalStorage: Stores artifacts on the local filesystem
// - R2Storage: Stores artifacts in Cloudflare R2 object storage
//
// Keys are always UUID-namespaced (see the key helpers below), so writes
// never collide and Put unconditionally replaces whatever is at the key.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key, replacing any existing object.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key.
	// Returns the data as an io.ReadCloser (caller must close), object metadata,
	// and an error. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key.
	// This operation is idempotent - no error is returned if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object at the specified key.
	// Local storage returns a permanent URL under its base URL; R2 returns a
	// presigned URL valid for the specified duration (or a public URL when a
	// custom domain is configured and expires is 0).
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it will be auto-detected from the file extension or content.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes.
	// If the data exceeds this size, ErrTooLarge is returned.
	// A value of 0 means no limit.
	MaxSize int64
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Size in bytes
	ContentType  string    // MIME type
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (if available)
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	// Example: "./storage" or "/var/lib/pixelproof/files"
	BasePath string

	// BaseURL is the public URL prefix for accessing files.
	// Example: "http://localhost:8080/files"
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	// AccountID is your Cloudflare account ID.
	AccountID string

	// AccessKeyID is the R2 API access key ID.
	AccessKeyID string

	// SecretAccessKey is the R2 API secret key.
	SecretAccessKey string

	// BucketName is the name of the R2 bucket to use.
	BucketName string

	// PublicURL is the public URL for the bucket (if using a custom domain).
	// Example: "https://files.pixelproof.app"
	// If empty, presigned URLs will be used for all access.
	PublicURL string

	// Region is the AWS region to use (required by AWS SDK).
	// For R2, this can be any valid region string as R2 is globally distributed.
	// Default: "auto"
	Region string
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// ComparisonImageKey generates a storage key for an uploaded screenshot.
// Format: comparisons/{comparisonID}/{slot}{ext}
//
// Parameters:
//   - comparisonID: UUID of the comparison
//   - slot: which upload this is ("image1" or "image2")
//   - contentType: MIME type used to pick the file extension
//
// Example: "comparisons/123e4567-e89b-12d3-a456-426614174000/image1.png"
func ComparisonImageKey(comparisonID uuid.UUID, slot, contentType string) string {
	return fmt.Sprintf("comparisons/%s/%s%s", comparisonID, slot, extensionForContentType(contentType))
}

// ComparisonReportKey generates a storage key for a generated QA report.
// Format: comparisons/{comparisonID}/report.md
func ComparisonReportKey(comparisonID uuid.UUID) string {
	return fmt.Sprintf("comparisons/%s/report.md", comparisonID)
}
