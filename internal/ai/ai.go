package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider defines the interface for AI-powered screenshot comparison
type Provider interface {
	// CompareScreenshots sends two UI screenshots to a vision model and
	// returns a markdown QA report of the visual differences
	CompareScreenshots(ctx context.Context, params CompareParams) (*CompareResult, error)
}

// Image is one screenshot to compare
type Image struct {
	Data        []byte // Raw image bytes
	ContentType string // MIME type (image/png, image/jpeg, image/webp)
}

// CompareParams contains parameters for a screenshot comparison
type CompareParams struct {
	Baseline     Image     // The reference screenshot
	Candidate    Image     // The screenshot under test
	Identity     string    // User identity for usage tracking
	ComparisonID uuid.UUID // Comparison ID for tracking
}

// CompareResult contains the generated QA report
type CompareResult struct {
	Report string    // Markdown report of visual differences
	Usage  UsageInfo // Token usage information
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// MaxImageSize is the maximum accepted image size in bytes (20MB)
const MaxImageSize = 20 * 1024 * 1024

// ValidContentTypes are the image formats accepted for comparison.
var ValidContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidImage indicates the image format or content is invalid
	EAIInvalidImage = errors.New("invalid image format or content")

	// EAIEmptyResult indicates the model returned no report text
	EAIEmptyResult = errors.New("ai provider returned no result")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// ValidateImage checks that an image is present, within size limits, and in a
// supported format.
func ValidateImage(img Image) error {
	if len(img.Data) == 0 {
		return EAIInvalidImage
	}
	if len(img.Data) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", EAIInvalidImage, len(img.Data), MaxImageSize)
	}
	if !ValidContentTypes[img.ContentType] {
		return fmt.Errorf("%w: unsupported content type %s", EAIInvalidImage, img.ContentType)
	}
	return nil
}
