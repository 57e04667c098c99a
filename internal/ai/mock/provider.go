// Package mock provides a fake AI provider for development and tests.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelproof/pixelproof/internal/ai"
)

// Provider implements ai.Provider with canned responses. Used in development
// to exercise the comparison flow without an API key, and in tests.
type Provider struct {
	logger *slog.Logger

	// Delay simulates model latency.
	Delay time.Duration

	// Err, when set, is returned from every call.
	Err error
}

// New creates a mock provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger}
}

// CompareScreenshots validates inputs like a real provider, then returns a
// deterministic placeholder report.
func (p *Provider) CompareScreenshots(ctx context.Context, params ai.CompareParams) (*ai.CompareResult, error) {
	if err := ai.ValidateImage(params.Baseline); err != nil {
		return nil, ai.WrapError("compare screenshots", err)
	}
	if err := ai.ValidateImage(params.Candidate); err != nil {
		return nil, ai.WrapError("compare screenshots", err)
	}

	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.Err != nil {
		return nil, p.Err
	}

	p.logger.Debug("mock comparison",
		"comparison_id", params.ComparisonID,
		"baseline_bytes", len(params.Baseline.Data),
		"candidate_bytes", len(params.Candidate.Data),
	)

	report := fmt.Sprintf(`# QA Report

## Layout
- No layout shifts detected between the two screenshots.

## Elements
- All elements present in the baseline appear in the candidate.

## Notes
- Mock comparison of %d and %d byte images; no model was consulted.
`, len(params.Baseline.Data), len(params.Candidate.Data))

	return &ai.CompareResult{
		Report: report,
		Usage: ai.UsageInfo{
			Model: "mock",
		},
	}, nil
}
