// Package opfraud detects insider fraud at the branch operations
// level: teller behavior anomalies, cash handling discrepancies, and
// teller-account collusion patterns.
//
// Unlike transaction scoring, these analyses rate people and process
// rather than single events; the thresholds are looser (critical at
// 0.8 instead of 0.9) because operational signals are noisier.
package opfraud

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/nexus/internal/metrics"
	"github.com/mbd888/nexus/internal/scoring"
)

// Severity of one detected anomaly or pattern.
const (
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Anomaly is one triggered operational signal.
type Anomaly struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Risk        float64 `json:"risk"`
}

// TellerProfile holds the baseline expectations for one teller.
type TellerProfile struct {
	AvgCashVariance float64 `json:"avgCashVariance"`
	AvgTxCount      int     `json:"avgTxCount"`
}

// Default profile for tellers with no calibrated history.
var defaultProfile = TellerProfile{
	AvgCashVariance: 500,
	AvgTxCount:      20,
}

// DailyMetrics summarize one teller's working day.
type DailyMetrics struct {
	DailyCashVariance       float64 `json:"dailyCashVariance"`
	TransactionCount        int     `json:"transactionCount"`
	LargeTransactionCount   int     `json:"largeTransactionCount"`
	AfterHoursWork          float64 `json:"afterHoursWork"` // hours past close
	ConsecutiveVarianceDays int     `json:"consecutiveVarianceDays"`
}

// TellerAssessment is the outcome of one behavior analysis.
type TellerAssessment struct {
	TellerID       string            `json:"tellerId"`
	RiskScore      float64           `json:"riskScore"`
	RiskLevel      scoring.RiskLevel `json:"riskLevel"`
	ZScore         float64           `json:"zScore"`
	Anomalies      []Anomaly         `json:"anomalies"`
	Recommendation string            `json:"recommendation"`
	Timestamp      time.Time         `json:"timestamp"`
}

// CashCount is one end-of-day drawer reconciliation.
type CashCount struct {
	ExpectedAmount         float64 `json:"expectedAmount"`
	ActualAmount           float64 `json:"actualAmount"`
	DiscrepanciesThisMonth int     `json:"discrepanciesThisMonth"`
}

// CashAssessment is the outcome of one cash handling analysis.
type CashAssessment struct {
	TellerID    string            `json:"tellerId"`
	RiskScore   float64           `json:"riskScore"`
	RiskLevel   scoring.RiskLevel `json:"riskLevel"`
	Issues      []Anomaly         `json:"issues"`
	Discrepancy float64           `json:"discrepancy"`
	Timestamp   time.Time         `json:"timestamp"`
}

// TellerTransaction is one teller-processed transaction for collusion
// analysis.
type TellerTransaction struct {
	TellerID  string    `json:"tellerId"`
	AccountID string    `json:"accountId"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// CollusionPattern is one suspicious teller-account relationship.
type CollusionPattern struct {
	Pattern          string  `json:"pattern"`
	Severity         string  `json:"severity"`
	TellerID         string  `json:"tellerId"`
	AccountID        string  `json:"accountId"`
	TransactionCount int     `json:"transactionCount,omitempty"`
	TimeSpanDays     int     `json:"timeSpanDays,omitempty"`
	Description      string  `json:"description"`
	Risk             float64 `json:"risk"`
}

// CollusionReport is the outcome of scanning a transaction batch.
type CollusionReport struct {
	PatternsDetected bool               `json:"patternsDetected"`
	PatternCount     int                `json:"patternCount"`
	Patterns         []CollusionPattern `json:"patterns"`
	Severity         string             `json:"severity"`
	GeneratedAt      time.Time          `json:"generatedAt"`
}

// Signal weights and triggers for the operational analyses.
const (
	criticalVarianceZ      = 3.0
	highVarianceZ          = 2.0
	criticalVarianceWeight = 0.5
	highVarianceWeight     = 0.3
	volumeMultiple         = 2
	volumeWeight           = 0.25
	largeTxTrigger         = 5
	largeTxWeight          = 0.2
	afterHoursTrigger      = 3.0
	afterHoursWeight       = 0.15
	varianceDaysTrigger    = 2
	varianceDaysWeight     = 0.3

	discrepancyPct    = 0.05
	discrepancyWeight = 0.4
	repeatTrigger     = 3
	repeatWeight      = 0.5

	structuringMinTxs   = 5
	structuringMaxDays  = 7
	structuringRisk     = 0.4
	roundAmountUnit     = 1000
	roundAmountFraction = 0.7
	roundAmountRisk     = 0.2
	largeTransferCount  = 2
	largeTransferRisk   = 0.35

	// Cash variance stddev is estimated from the profile when no real
	// history exists; never below this floor.
	varianceStddevFloor = 100
)

// Options configure the detector.
type Options struct {
	LargeAmount float64 // large-transfer line for collusion scans
}

// DefaultOptions mirrors the transaction scoring ceiling.
func DefaultOptions() Options {
	return Options{LargeAmount: 100000}
}

// Detector runs operational fraud analyses. Safe for concurrent use.
type Detector struct {
	opts       Options
	classifier *scoring.Classifier

	mu       sync.RWMutex
	profiles map[string]TellerProfile
}

// NewDetector creates a detector with operational classification tiers
// (critical 0.8 / high 0.6 / medium 0.4).
func NewDetector(opts Options) *Detector {
	return &Detector{
		opts: opts,
		classifier: scoring.MustClassifier(scoring.ClassifierOptions{
			CriticalThreshold: 0.8,
			HighThreshold:     0.6,
			MediumThreshold:   0.4,
		}),
		profiles: make(map[string]TellerProfile),
	}
}

// SetProfile calibrates a teller's baseline expectations. Tellers
// without a calibrated profile use the branch-wide defaults.
func (d *Detector) SetProfile(tellerID string, p TellerProfile) {
	d.mu.Lock()
	d.profiles[tellerID] = p
	d.mu.Unlock()
}

func (d *Detector) profileFor(tellerID string) TellerProfile {
	d.mu.RLock()
	p, ok := d.profiles[tellerID]
	d.mu.RUnlock()
	if ok {
		return p
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.profiles[tellerID]; ok {
		return p
	}
	d.profiles[tellerID] = defaultProfile
	return defaultProfile
}

// AnalyzeTeller scores one teller's daily behavior against their
// profile.
func (d *Detector) AnalyzeTeller(tellerID string, m DailyMetrics) TellerAssessment {
	profile := d.profileFor(tellerID)

	var anomalies []Anomaly
	score := 0.0

	dailyVar := math.Abs(m.DailyCashVariance)
	avgVar := math.Abs(profile.AvgCashVariance)
	stddev := math.Max(avgVar*0.3, varianceStddevFloor)
	z := (dailyVar - avgVar) / stddev

	switch {
	case z > criticalVarianceZ:
		anomalies = append(anomalies, Anomaly{
			Type:        "CRITICAL_CASH_VARIANCE",
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("cash variance %.0f is %.1f standard deviations above normal", dailyVar, z),
			Risk:        criticalVarianceWeight,
		})
		score += criticalVarianceWeight
	case z > highVarianceZ:
		anomalies = append(anomalies, Anomaly{
			Type:        "HIGH_CASH_VARIANCE",
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("cash variance %.0f is significantly above normal %.0f", dailyVar, avgVar),
			Risk:        highVarianceWeight,
		})
		score += highVarianceWeight
	}

	if m.TransactionCount > profile.AvgTxCount*volumeMultiple {
		anomalies = append(anomalies, Anomaly{
			Type:        "HIGH_TRANSACTION_VOLUME",
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("processed %d transactions (over 2x normal %d)", m.TransactionCount, profile.AvgTxCount),
			Risk:        volumeWeight,
		})
		score += volumeWeight
	}

	if m.LargeTransactionCount > largeTxTrigger {
		anomalies = append(anomalies, Anomaly{
			Type:        "UNUSUAL_LARGE_TRANSACTIONS",
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d large transactions processed", m.LargeTransactionCount),
			Risk:        largeTxWeight,
		})
		score += largeTxWeight
	}

	if m.AfterHoursWork > afterHoursTrigger {
		anomalies = append(anomalies, Anomaly{
			Type:        "UNUSUAL_HOURS",
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("worked %.1f hours after normal business hours", m.AfterHoursWork),
			Risk:        afterHoursWeight,
		})
		score += afterHoursWeight
	}

	if m.ConsecutiveVarianceDays > varianceDaysTrigger {
		anomalies = append(anomalies, Anomaly{
			Type:        "PATTERN_OF_VARIANCE",
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("cash variance detected on %d consecutive days", m.ConsecutiveVarianceDays),
			Risk:        varianceDaysWeight,
		})
		score += varianceDaysWeight
	}

	score = math.Min(score, 1.0)
	level, flagged := d.classifier.Classify(score)

	metrics.EventsScoredTotal.WithLabelValues("teller", string(level)).Inc()
	if flagged {
		metrics.FlaggedEventsTotal.WithLabelValues("teller").Inc()
	}

	return TellerAssessment{
		TellerID:       tellerID,
		RiskScore:      score,
		RiskLevel:      level,
		ZScore:         z,
		Anomalies:      anomalies,
		Recommendation: recommendation(level),
		Timestamp:      time.Now(),
	}
}

// AnalyzeCashHandling scores one drawer reconciliation.
func (d *Detector) AnalyzeCashHandling(tellerID string, count CashCount) CashAssessment {
	var issues []Anomaly
	score := 0.0

	discrepancy := math.Abs(count.ExpectedAmount - count.ActualAmount)
	if discrepancy > count.ExpectedAmount*discrepancyPct {
		pct := 0.0
		if count.ExpectedAmount > 0 {
			pct = discrepancy / count.ExpectedAmount * 100
		}
		issues = append(issues, Anomaly{
			Type:        "SIGNIFICANT_DISCREPANCY",
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("expected %.0f, found %.0f (%.2f%% off)", count.ExpectedAmount, count.ActualAmount, pct),
			Risk:        discrepancyWeight,
		})
		score += discrepancyWeight
	}

	if count.DiscrepanciesThisMonth > repeatTrigger {
		issues = append(issues, Anomaly{
			Type:        "REPEAT_DISCREPANCIES",
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("%d discrepancies this month", count.DiscrepanciesThisMonth),
			Risk:        repeatWeight,
		})
		score += repeatWeight
	}

	score = math.Min(score, 1.0)
	level, flagged := d.classifier.Classify(score)

	metrics.EventsScoredTotal.WithLabelValues("cash", string(level)).Inc()
	if flagged {
		metrics.FlaggedEventsTotal.WithLabelValues("cash").Inc()
	}

	return CashAssessment{
		TellerID:    tellerID,
		RiskScore:   score,
		RiskLevel:   level,
		Issues:      issues,
		Discrepancy: discrepancy,
		Timestamp:   time.Now(),
	}
}

// DetectCollusion scans a transaction batch for suspicious
// teller-account relationships. Pairs with fewer than 2 transactions
// are ignored.
func (d *Detector) DetectCollusion(txs []TellerTransaction) CollusionReport {
	type pairKey struct{ teller, account string }

	pairs := make(map[pairKey][]TellerTransaction)
	for _, tx := range txs {
		k := pairKey{tx.TellerID, tx.AccountID}
		pairs[k] = append(pairs[k], tx)
	}

	// Deterministic report order regardless of map iteration.
	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].teller != keys[j].teller {
			return keys[i].teller < keys[j].teller
		}
		return keys[i].account < keys[j].account
	})

	var patterns []CollusionPattern
	for _, k := range keys {
		pairTxs := pairs[k]
		if len(pairTxs) < 2 {
			continue
		}
		sort.Slice(pairTxs, func(i, j int) bool {
			return pairTxs[i].CreatedAt.Before(pairTxs[j].CreatedAt)
		})

		if len(pairTxs) >= structuringMinTxs {
			span := int(pairTxs[len(pairTxs)-1].CreatedAt.Sub(pairTxs[0].CreatedAt).Hours() / 24)
			if span <= structuringMaxDays {
				patterns = append(patterns, CollusionPattern{
					Pattern:          "STRUCTURING_SUSPECTED",
					Severity:         SeverityHigh,
					TellerID:         k.teller,
					AccountID:        k.account,
					TransactionCount: len(pairTxs),
					TimeSpanDays:     span,
					Description:      fmt.Sprintf("%d transactions in %d days", len(pairTxs), span),
					Risk:             structuringRisk,
				})
			}
		}

		roundCount := 0
		for _, tx := range pairTxs {
			if tx.Amount > 0 && math.Mod(tx.Amount, roundAmountUnit) == 0 {
				roundCount++
			}
		}
		if float64(roundCount) > float64(len(pairTxs))*roundAmountFraction {
			patterns = append(patterns, CollusionPattern{
				Pattern:     "ROUND_AMOUNTS",
				Severity:    SeverityMedium,
				TellerID:    k.teller,
				AccountID:   k.account,
				Description: fmt.Sprintf("%d of %d amounts are round figures", roundCount, len(pairTxs)),
				Risk:        roundAmountRisk,
			})
		}

		largeCount := 0
		for _, tx := range pairTxs {
			if tx.Amount > d.opts.LargeAmount {
				largeCount++
			}
		}
		if largeCount > largeTransferCount {
			patterns = append(patterns, CollusionPattern{
				Pattern:          "RAPID_LARGE_TRANSFERS",
				Severity:         SeverityHigh,
				TellerID:         k.teller,
				AccountID:        k.account,
				TransactionCount: largeCount,
				Description:      fmt.Sprintf("%d large transfers", largeCount),
				Risk:             largeTransferRisk,
			})
		}
	}

	severity := "low"
	if len(patterns) > 0 {
		severity = SeverityHigh
	}
	return CollusionReport{
		PatternsDetected: len(patterns) > 0,
		PatternCount:     len(patterns),
		Patterns:         patterns,
		Severity:         severity,
		GeneratedAt:      time.Now(),
	}
}

func recommendation(level scoring.RiskLevel) string {
	switch level {
	case scoring.LevelCritical:
		return "urgent: escalate to compliance immediately"
	case scoring.LevelHigh:
		return "high: review with branch manager"
	case scoring.LevelMedium:
		return "medium: monitor closely"
	default:
		return "low: no action needed"
	}
}
