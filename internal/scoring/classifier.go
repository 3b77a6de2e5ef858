package scoring

import "fmt"

// Classifier maps a numeric risk score to a tier using fixed ordered
// thresholds, evaluated highest-first with inclusive lower bounds.
type Classifier struct {
	critical float64
	high     float64
	medium   float64
}

// ClassifierOptions are the named tier thresholds.
type ClassifierOptions struct {
	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
}

// DefaultClassifierOptions returns the standard tier boundaries.
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		CriticalThreshold: 0.9,
		HighThreshold:     0.7,
		MediumThreshold:   0.4,
	}
}

// NewClassifier validates the threshold ordering and returns a
// classifier. Misordered thresholds are a configuration error and must
// abort startup; they are never re-checked per event.
func NewClassifier(opts ClassifierOptions) (*Classifier, error) {
	if opts.CriticalThreshold <= opts.HighThreshold {
		return nil, fmt.Errorf("scoring: critical threshold %.2f must exceed high threshold %.2f",
			opts.CriticalThreshold, opts.HighThreshold)
	}
	if opts.HighThreshold <= opts.MediumThreshold {
		return nil, fmt.Errorf("scoring: high threshold %.2f must exceed medium threshold %.2f",
			opts.HighThreshold, opts.MediumThreshold)
	}
	if opts.MediumThreshold <= 0 || opts.CriticalThreshold > 1 {
		return nil, fmt.Errorf("scoring: thresholds must lie in (0, 1]")
	}
	return &Classifier{
		critical: opts.CriticalThreshold,
		high:     opts.HighThreshold,
		medium:   opts.MediumThreshold,
	}, nil
}

// MustClassifier is NewClassifier that panics on invalid thresholds.
// For tests and defaults known to be valid.
func MustClassifier(opts ClassifierOptions) *Classifier {
	c, err := NewClassifier(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the risk tier for a score and whether the event is
// flagged for review. Flagged means anything above the low tier.
func (c *Classifier) Classify(score float64) (RiskLevel, bool) {
	var level RiskLevel
	switch {
	case score >= c.critical:
		level = LevelCritical
	case score >= c.high:
		level = LevelHigh
	case score >= c.medium:
		level = LevelMedium
	default:
		level = LevelLow
	}
	return level, level != LevelLow
}
