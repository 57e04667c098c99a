package domain

import (
	"time"

	"github.com/google/uuid"
)

// Comparison records one completed screenshot comparison: who ran it, under
// which plan, and where the inputs and generated report live in storage.
type Comparison struct {
	ID        uuid.UUID
	Identity  string
	Plan      PlanID
	Image1Key string
	Image2Key string
	ReportKey string
	Model     string
	CreatedAt time.Time
}

// ComparisonReport is the response payload for a completed comparison: the
// markdown report plus the quota position after this run.
type ComparisonReport struct {
	ID     uuid.UUID `json:"id"`
	Report string    `json:"result"`
	Plan   PlanID    `json:"plan"`
	Used   int       `json:"used"`
	Max    int       `json:"max"`
}
