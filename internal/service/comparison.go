// Package service contains the business logic layer.
//
// This file implements the comparison pipeline: quota gate, screenshot
// normalization, storage, the vision-model call, and the history record.
package service

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/pixelproof/pixelproof/internal/ai"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/metrics"
	"github.com/pixelproof/pixelproof/internal/repository"
	"github.com/pixelproof/pixelproof/internal/storage"
)

// maxImageDimension is the longest edge sent to the vision model. Larger
// screenshots are downscaled to keep token cost and latency bounded.
const maxImageDimension = 2048

// ComparisonService runs the full comparison pipeline for one request.
type ComparisonService interface {
	// Compare consumes one quota unit, stores both screenshots, asks the
	// vision model for a QA report, stores the report, and records the run.
	//
	// The quota unit is consumed before any expensive work and is not
	// refunded on downstream failure.
	Compare(ctx context.Context, identity string, image1, image2 ai.Image) (*domain.ComparisonReport, error)

	// History returns the identity's most recent comparisons.
	History(ctx context.Context, identity string, limit int) ([]domain.Comparison, error)

	// Report streams the stored markdown report for one of the identity's
	// comparisons. Comparisons owned by someone else read as not found.
	Report(ctx context.Context, identity string, id uuid.UUID) (io.ReadCloser, error)

	// ScreenshotURL returns a URL for one of the stored screenshots.
	// slot is "image1" or "image2".
	ScreenshotURL(ctx context.Context, identity string, id uuid.UUID, slot string) (string, error)

	// Delete removes a comparison's stored artifacts and its history record.
	Delete(ctx context.Context, identity string, id uuid.UUID) error
}

type comparisonService struct {
	gate        QuotaGate
	provider    ai.Provider
	store       storage.Storage
	comparisons repository.ComparisonStore
	logger      *slog.Logger
}

// NewComparisonService creates a ComparisonService.
func NewComparisonService(gate QuotaGate, provider ai.Provider, store storage.Storage, comparisons repository.ComparisonStore, logger *slog.Logger) ComparisonService {
	return &comparisonService{
		gate:        gate,
		provider:    provider,
		store:       store,
		comparisons: comparisons,
		logger:      logger,
	}
}

func (s *comparisonService) Compare(ctx context.Context, identity string, image1, image2 ai.Image) (*domain.ComparisonReport, error) {
	const op = "comparison.compare"

	if err := ai.ValidateImage(image1); err != nil {
		return nil, domain.Invalid(op, "Only JPG, PNG, and WEBP formats are supported")
	}
	if err := ai.ValidateImage(image2); err != nil {
		return nil, domain.Invalid(op, "Only JPG, PNG, and WEBP formats are supported")
	}

	// Gate first: entitlement + quota, strictly before any expensive work.
	gateRes, err := s.gate.CheckAndConsume(ctx, identity)
	if err != nil {
		return nil, err
	}

	comparisonID := uuid.New()

	image1 = s.normalize(image1)
	image2 = s.normalize(image2)

	key1 := storage.ComparisonImageKey(comparisonID, "image1", image1.ContentType)
	key2 := storage.ComparisonImageKey(comparisonID, "image2", image2.ContentType)
	s.put(ctx, key1, image1.Data, image1.ContentType)
	s.put(ctx, key2, image2.Data, image2.ContentType)

	result, err := s.provider.CompareScreenshots(ctx, ai.CompareParams{
		Baseline:     image1,
		Candidate:    image2,
		Identity:     identity,
		ComparisonID: comparisonID,
	})
	if err != nil {
		// The consumed unit stays consumed; a retried request goes through
		// the gate again.
		if ai.IsRetryable(err) {
			return nil, domain.Unavailable(err, op)
		}
		return nil, domain.Internal(err, op, "Comparison failed")
	}

	reportKey := storage.ComparisonReportKey(comparisonID)
	s.put(ctx, reportKey, []byte(result.Report), "text/markdown")

	record := &domain.Comparison{
		ID:        comparisonID,
		Identity:  identity,
		Plan:      gateRes.Plan,
		Image1Key: key1,
		Image2Key: key2,
		ReportKey: reportKey,
		Model:     result.Usage.Model,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comparisons.Create(ctx, record); err != nil {
		// The user already has their report; history is best-effort.
		s.logger.Error("failed to record comparison", "comparison_id", comparisonID, "error", err)
	}

	metrics.ComparisonsCreated.Inc()
	s.logger.Info("comparison completed",
		"comparison_id", comparisonID,
		"identity", identity,
		"plan", gateRes.Plan,
		"used", gateRes.Used,
		"max", gateRes.Max,
		"model", result.Usage.Model,
		"duration", result.Usage.Duration,
	)

	return &domain.ComparisonReport{
		ID:     comparisonID,
		Report: result.Report,
		Plan:   gateRes.Plan,
		Used:   gateRes.Used,
		Max:    gateRes.Max,
	}, nil
}

func (s *comparisonService) History(ctx context.Context, identity string, limit int) ([]domain.Comparison, error) {
	const op = "comparison.history"

	if limit <= 0 || limit > 50 {
		limit = 20
	}
	list, err := s.comparisons.ListRecent(ctx, identity, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list comparisons")
	}
	return list, nil
}

// screenshotURLTTL bounds how long a presigned screenshot link stays valid.
const screenshotURLTTL = 15 * time.Minute

func (s *comparisonService) Report(ctx context.Context, identity string, id uuid.UUID) (io.ReadCloser, error) {
	const op = "comparison.report"

	rec, err := s.ownedComparison(ctx, op, identity, id)
	if err != nil {
		return nil, err
	}

	body, _, err := s.store.Get(ctx, rec.ReportKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, domain.NotFound(op, "Report", id.String())
		}
		return nil, domain.Internal(err, op, "failed to read report")
	}
	return body, nil
}

func (s *comparisonService) ScreenshotURL(ctx context.Context, identity string, id uuid.UUID, slot string) (string, error) {
	const op = "comparison.screenshot_url"

	rec, err := s.ownedComparison(ctx, op, identity, id)
	if err != nil {
		return "", err
	}

	var key string
	switch slot {
	case "image1":
		key = rec.Image1Key
	case "image2":
		key = rec.Image2Key
	default:
		return "", domain.Invalid(op, "Screenshot must be image1 or image2")
	}

	url, err := s.store.URL(ctx, key, screenshotURLTTL)
	if err != nil {
		return "", domain.Internal(err, op, "failed to build screenshot URL")
	}
	return url, nil
}

func (s *comparisonService) Delete(ctx context.Context, identity string, id uuid.UUID) error {
	const op = "comparison.delete"

	rec, err := s.ownedComparison(ctx, op, identity, id)
	if err != nil {
		return err
	}

	// Artifact deletes are idempotent; a failed one leaves an orphaned blob
	// but never a dangling history row.
	for _, key := range []string{rec.Image1Key, rec.Image2Key, rec.ReportKey} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error("failed to delete stored object", "key", key, "error", err)
		}
	}

	if err := s.comparisons.DeleteComparison(ctx, id); err != nil {
		return domain.Internal(err, op, "failed to delete comparison")
	}
	s.logger.Info("comparison deleted", "comparison_id", id, "identity", identity)
	return nil
}

// ownedComparison loads a comparison and enforces ownership. A comparison
// belonging to another identity reads as not found rather than forbidden, so
// ids can't be probed.
func (s *comparisonService) ownedComparison(ctx context.Context, op, identity string, id uuid.UUID) (*domain.Comparison, error) {
	rec, err := s.comparisons.GetComparison(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load comparison")
	}
	if rec == nil || rec.Identity != identity {
		return nil, domain.NotFound(op, "Comparison", id.String())
	}
	return rec, nil
}

// normalize downscales oversized screenshots to maxImageDimension on the
// longest edge. On decode failure the original bytes are sent as-is; the
// provider does its own validation.
func (s *comparisonService) normalize(img ai.Image) ai.Image {
	src, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img
	}

	bounds := src.Bounds()
	if bounds.Dx() <= maxImageDimension && bounds.Dy() <= maxImageDimension {
		return img
	}

	resized := imaging.Fit(src, maxImageDimension, maxImageDimension, imaging.Lanczos)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = imaging.Encode(&buf, resized, imaging.PNG)
	default:
		// webp has no stdlib encoder; jpeg is fine as transport for the model
		err = imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90))
		img.ContentType = "image/jpeg"
	}
	if err != nil {
		s.logger.Warn("failed to re-encode downscaled image", "error", err)
		return img
	}

	img.Data = buf.Bytes()
	return img
}

// put stores an object, logging rather than failing the comparison: storage
// is the archive, not the critical path.
func (s *comparisonService) put(ctx context.Context, key string, data []byte, contentType string) {
	err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("failed to store object", "key", key, "error", err)
	}
}
