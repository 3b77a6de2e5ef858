// Package scoring implements deterministic fraud risk scoring for
// banking transaction and check-verification events.
//
// Every event is evaluated against weighted rule signals: amount
// deviation from the account's rolling baseline, 24h velocity, and an
// absolute amount ceiling for transactions; a fixed indicator table for
// checks. Scores range from 0.0 (safe) to 1.0 (certain fraud) and every
// triggered signal appends a human-readable reason in trigger order.
// Scoring is a pure function of its inputs so results are reproducible
// and directly testable.
package scoring

import (
	"fmt"
	"math"
	"time"
)

// RiskLevel is the ordered classification tier derived from a score.
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelMedium   RiskLevel = "medium"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

// TransactionEvent is a single banking transaction, produced externally.
// Immutable once created.
type TransactionEvent struct {
	AccountID string    `json:"accountId"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckEvent is a check-verification request. Immutable once created.
type CheckEvent struct {
	CheckNumber         string    `json:"checkNumber"`
	AccountID           string    `json:"accountId"`
	SignatureMatchScore float64   `json:"signatureMatchScore"` // [0,1], 1 = perfect match
	IsStolen            bool      `json:"isStolen"`
	IsDuplicate         bool      `json:"isDuplicate"`
	IsAltered           bool      `json:"isAltered"`
	Timestamp           time.Time `json:"timestamp"`
}

// Baseline is a point-in-time copy of an account's rolling statistics
// used for one scoring decision.
type Baseline struct {
	Mean        float64 `json:"mean"`
	Stddev      float64 `json:"stddev"`
	SampleCount int     `json:"sampleCount"`
	Count24h    int     `json:"count24h"`
}

// ScoreResult is the outcome of scoring one event. Value type, immutable
// once produced.
type ScoreResult struct {
	RiskScore float64   `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`
	IsFlagged bool      `json:"isFlagged"`
	Reasons   []string  `json:"reasons"`
}

// Signal contribution weights for transaction scoring.
const (
	deviationBaseWeight = 0.4  // at exactly the z-score threshold
	deviationSlope      = 0.05 // per sigma above the threshold
	velocityWeight      = 0.3
	ceilingWeight       = 0.2
)

// Check indicator weights. Independent and stacking.
const (
	stolenWeight      = 0.9
	alteredWeight     = 0.5
	duplicateWeight   = 0.4
	signatureWeight   = 0.3
	signatureCutoff   = 0.5
	forcedCriticalSum = 0.9 // raw stacked sum at or above this is always critical
)

// Options are the tunable scoring thresholds, set once at startup.
type Options struct {
	VelocityThreshold int     // count_24h above this triggers the velocity signal
	AmountCeiling     float64 // amounts above this trigger regardless of history
	ZScoreThreshold   float64 // sigma multiplier for the deviation signal
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		VelocityThreshold: 10,
		AmountCeiling:     100000,
		ZScoreThreshold:   3.0,
	}
}

// Scorer evaluates events against the configured thresholds.
type Scorer struct {
	opts       Options
	classifier *Classifier
}

// NewScorer creates a scorer with the given thresholds and classifier.
func NewScorer(opts Options, classifier *Classifier) *Scorer {
	return &Scorer{opts: opts, classifier: classifier}
}

// ScoreTransaction evaluates one transaction against the account's
// baseline snapshot. Pure function: identical inputs always produce
// the identical result.
//
// A baseline with fewer than 2 samples has no defined variance; the
// deviation signal is skipped so brand-new accounts are scored on the
// history-free signals only.
func (s *Scorer) ScoreTransaction(ev TransactionEvent, baseline Baseline) ScoreResult {
	score := 0.0
	var reasons []string

	// Signal 1: amount deviation from the rolling baseline.
	if baseline.SampleCount >= 2 && baseline.Stddev > 0 {
		z := (ev.Amount - baseline.Mean) / baseline.Stddev
		if z >= s.opts.ZScoreThreshold {
			contribution := math.Min(1.0, deviationBaseWeight+deviationSlope*(z-s.opts.ZScoreThreshold))
			score += contribution
			reasons = append(reasons, fmt.Sprintf(
				"amount deviation: %.0f is %.1f standard deviations above account average %.0f",
				ev.Amount, z, baseline.Mean))
		}
	}

	// Signal 2: transaction velocity over the 24h window.
	if baseline.Count24h > s.opts.VelocityThreshold {
		score += velocityWeight
		reasons = append(reasons, fmt.Sprintf(
			"high frequency: %d transactions in 24h", baseline.Count24h))
	}

	// Signal 3: absolute ceiling, independent of history.
	if ev.Amount > s.opts.AmountCeiling {
		score += ceilingWeight
		reasons = append(reasons, fmt.Sprintf(
			"large amount: %.0f exceeds ceiling %.0f", ev.Amount, s.opts.AmountCeiling))
	}

	score = math.Min(score, 1.0)
	level, flagged := s.classifier.Classify(score)

	if len(reasons) == 0 {
		reasons = []string{"normal transaction"}
	}

	return ScoreResult{
		RiskScore: score,
		RiskLevel: level,
		IsFlagged: flagged,
		Reasons:   reasons,
	}
}

// ScoreCheck evaluates a check against the fraud indicator table.
// Indicators contribute independently and stack; a raw stacked sum at
// or above 0.9 is forced to critical so a stolen-and-altered check can
// never be downgraded by clamping.
func (s *Scorer) ScoreCheck(ev CheckEvent) ScoreResult {
	raw := 0.0
	var reasons []string

	if ev.IsStolen {
		raw += stolenWeight
		reasons = append(reasons, "check reported stolen")
	}
	if ev.IsAltered {
		raw += alteredWeight
		reasons = append(reasons, "check shows signs of alteration")
	}
	if ev.IsDuplicate {
		raw += duplicateWeight
		reasons = append(reasons, "duplicate check detected")
	}
	if ev.SignatureMatchScore < signatureCutoff {
		raw += signatureWeight
		reasons = append(reasons, fmt.Sprintf(
			"signature mismatch (%.0f%% confidence)", ev.SignatureMatchScore*100))
	}

	score := math.Min(raw, 1.0)
	level, flagged := s.classifier.Classify(score)

	if raw >= forcedCriticalSum {
		level = LevelCritical
		flagged = true
	}

	if len(reasons) == 0 {
		reasons = []string{"no fraud indicators"}
	}

	return ScoreResult{
		RiskScore: score,
		RiskLevel: level,
		IsFlagged: flagged,
		Reasons:   reasons,
	}
}
