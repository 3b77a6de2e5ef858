// Package dashboard aggregates live fraud statistics for the
// monitoring surface. Counters are cumulative for the process lifetime
// and only ever increase.
package dashboard

import (
	"sync/atomic"
	"time"

	"github.com/mbd888/nexus/internal/engine"
	"github.com/mbd888/nexus/internal/scoring"
)

// Summary is a point-in-time copy of the aggregate counters.
type Summary struct {
	TransactionsToday    int64     `json:"transactionsToday"`
	FlaggedTransactions  int64     `json:"flaggedTransactions"`
	CriticalAlerts       int64     `json:"criticalAlerts"`
	StolenChecksDetected int64     `json:"stolenChecksDetected"`
	TrackedAccounts      int       `json:"trackedAccounts"`
	GeneratedAt          time.Time `json:"generatedAt"`
}

// AccountCounter reports how many accounts have profile state.
type AccountCounter interface {
	TrackedAccounts() int
}

// Aggregator accumulates alert statistics. It implements engine.Sink;
// OnAlert is lock-free so it never slows the analysis pipeline.
type Aggregator struct {
	accounts AccountCounter

	transactions atomic.Int64
	flagged      atomic.Int64
	critical     atomic.Int64
	stolenChecks atomic.Int64
}

// NewAggregator creates an aggregator. accounts may be nil; the
// tracked-account count then reads as zero.
func NewAggregator(accounts AccountCounter) *Aggregator {
	return &Aggregator{accounts: accounts}
}

// OnAlert folds one analysis outcome into the counters. Every accepted
// event counts toward the volume counter, checks included.
func (a *Aggregator) OnAlert(rec *engine.AlertRecord) {
	a.transactions.Add(1)
	if rec.IsFlagged {
		a.flagged.Add(1)
	}
	if rec.RiskLevel == scoring.LevelCritical {
		a.critical.Add(1)
	}
	if rec.SourceType == engine.SourceCheck && rec.StolenCheck {
		a.stolenChecks.Add(1)
	}
}

// Snapshot returns a consistent-enough copy of the counters. Each
// counter is read atomically; the set is not a single linearization
// point, which is fine for a monitoring view.
func (a *Aggregator) Snapshot() Summary {
	s := Summary{
		TransactionsToday:    a.transactions.Load(),
		FlaggedTransactions:  a.flagged.Load(),
		CriticalAlerts:       a.critical.Load(),
		StolenChecksDetected: a.stolenChecks.Load(),
		GeneratedAt:          time.Now(),
	}
	if a.accounts != nil {
		s.TrackedAccounts = a.accounts.TrackedAccounts()
	}
	return s
}
