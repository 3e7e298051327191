package model

import (
	"time"
)

// ValidatorVersion is stamped into every ValidationMeta block so stored
// listings can be traced back to the rule set that admitted them.
const ValidatorVersion = "1.2.0"

// ValidationMeta records how and when a listing was validated.
type ValidationMeta struct {
	Marketplace Marketplace   `json:"marketplace"`
	Duration    time.Duration `json:"duration"`
	CheckedAt   time.Time     `json:"checked_at"`
	Version     string        `json:"version"`
}

// ValidationResult is the outcome of validating a single raw listing.
// A listing with any hard error has Valid=false and no Normalized
// output; scores are only computed for structurally valid listings.
type ValidationResult struct {
	Valid        bool               `json:"valid"`
	Errors       []string           `json:"errors,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Confidence   float64            `json:"confidence"`
	AnomalyScore float64            `json:"anomaly_score"`
	Normalized   *NormalizedListing `json:"normalized,omitempty"`
	Meta         ValidationMeta     `json:"meta"`
}
