// Package engine coordinates fraud analysis: it validates incoming
// events, maintains per-account spending profiles, scores each event,
// and publishes the resulting alert to downstream consumers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/nexus/internal/metrics"
	"github.com/mbd888/nexus/internal/profile"
	"github.com/mbd888/nexus/internal/scoring"
	"github.com/mbd888/nexus/internal/traces"
)

// ErrInvalidInput marks events rejected before they touch any account
// state. Callers can map it to a 400.
var ErrInvalidInput = errors.New("engine: invalid input")

// SourceType identifies which analysis path produced an alert.
type SourceType string

const (
	SourceTransaction SourceType = "transaction"
	SourceCheck       SourceType = "check"
)

// AlertRecord is the immutable outcome of analyzing one event. IDs are
// monotonically increasing for the lifetime of the process.
type AlertRecord struct {
	ID          int64             `json:"id"`
	SourceType  SourceType        `json:"sourceType"`
	AccountID   string            `json:"accountId"`
	Amount      float64           `json:"amount,omitempty"`
	CheckNum    string            `json:"checkNumber,omitempty"`
	StolenCheck bool              `json:"stolenCheck,omitempty"`
	RiskScore   float64           `json:"riskScore"`
	RiskLevel   scoring.RiskLevel `json:"riskLevel"`
	IsFlagged   bool              `json:"isFlagged"`
	Reasons     []string          `json:"reasons"`
	Baseline    *profile.Snapshot `json:"baseline,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Publisher receives every alert for real-time fan-out.
type Publisher interface {
	Publish(alert any)
}

// Sink receives every alert for aggregation. OnAlert must not block.
type Sink interface {
	OnAlert(rec *AlertRecord)
}

// Options configure a Coordinator.
type Options struct {
	RecentCap int // ring buffer size for Recent(); default 20
}

// DefaultRecentCap is the number of alerts kept for replay.
const DefaultRecentCap = 20

// Coordinator runs the analysis pipeline. Safe for concurrent use.
type Coordinator struct {
	profiles *profile.Store
	scorer   *scoring.Scorer

	publisher Publisher
	sinks     []Sink

	nextID atomic.Int64

	mu     sync.Mutex
	recent []*AlertRecord // ring, oldest first once full
	start  int
	count  int
}

// New creates a Coordinator. publisher may be nil when no real-time
// feed is attached (tests, batch replays).
func New(profiles *profile.Store, scorer *scoring.Scorer, publisher Publisher, opts Options) *Coordinator {
	if opts.RecentCap <= 0 {
		opts.RecentCap = DefaultRecentCap
	}
	return &Coordinator{
		profiles:  profiles,
		scorer:    scorer,
		publisher: publisher,
		recent:    make([]*AlertRecord, opts.RecentCap),
	}
}

// AttachSink registers an aggregation sink. Not safe to call after
// submissions begin.
func (c *Coordinator) AttachSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

// SubmitTransaction analyzes a spending event. The event is applied to
// the account's rolling profile only after validation passes, so
// malformed input can never poison baselines.
func (c *Coordinator) SubmitTransaction(ctx context.Context, ev scoring.TransactionEvent) (*AlertRecord, error) {
	_, span := traces.StartSpan(ctx, "engine.SubmitTransaction",
		traces.AccountID(ev.AccountID), traces.SourceType(string(SourceTransaction)))
	defer span.End()

	if err := validateTransaction(ev); err != nil {
		metrics.InvalidEventsTotal.WithLabelValues(string(SourceTransaction)).Inc()
		return nil, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	timer := time.Now()
	baseline := c.profiles.Apply(ev.AccountID, ev.Amount, ev.Timestamp)
	result := c.scorer.ScoreTransaction(ev, scoring.Baseline{
		Mean:        baseline.Mean,
		Stddev:      baseline.Stddev,
		SampleCount: baseline.SampleCount,
		Count24h:    baseline.Count24h,
	})
	metrics.ScoringDuration.WithLabelValues(string(SourceTransaction)).Observe(time.Since(timer).Seconds())

	rec := &AlertRecord{
		ID:         c.nextID.Add(1),
		SourceType: SourceTransaction,
		AccountID:  ev.AccountID,
		Amount:     ev.Amount,
		RiskScore:  result.RiskScore,
		RiskLevel:  result.RiskLevel,
		IsFlagged:  result.IsFlagged,
		Reasons:    result.Reasons,
		Baseline:   &baseline,
		CreatedAt:  time.Now(),
	}
	span.SetAttributes(
		traces.RiskScore(rec.RiskScore),
		traces.RiskLevel(string(rec.RiskLevel)),
		traces.AlertID(rec.ID),
	)

	c.record(rec)
	return rec, nil
}

// SubmitCheck analyzes a check event. Check fraud indicators are
// self-contained, so no profile state is consulted or mutated.
func (c *Coordinator) SubmitCheck(ctx context.Context, ev scoring.CheckEvent) (*AlertRecord, error) {
	_, span := traces.StartSpan(ctx, "engine.SubmitCheck",
		traces.AccountID(ev.AccountID), traces.SourceType(string(SourceCheck)))
	defer span.End()

	if err := validateCheck(ev); err != nil {
		metrics.InvalidEventsTotal.WithLabelValues(string(SourceCheck)).Inc()
		return nil, err
	}

	timer := time.Now()
	result := c.scorer.ScoreCheck(ev)
	metrics.ScoringDuration.WithLabelValues(string(SourceCheck)).Observe(time.Since(timer).Seconds())

	rec := &AlertRecord{
		ID:          c.nextID.Add(1),
		SourceType:  SourceCheck,
		AccountID:   ev.AccountID,
		CheckNum:    ev.CheckNumber,
		StolenCheck: ev.IsStolen,
		RiskScore:   result.RiskScore,
		RiskLevel:   result.RiskLevel,
		IsFlagged:   result.IsFlagged,
		Reasons:     result.Reasons,
		CreatedAt:   time.Now(),
	}
	span.SetAttributes(
		traces.RiskScore(rec.RiskScore),
		traces.RiskLevel(string(rec.RiskLevel)),
		traces.AlertID(rec.ID),
	)

	c.record(rec)
	return rec, nil
}

// record stores the alert in the recent ring and hands it to sinks and
// the publisher. Publishing happens outside the ring lock.
func (c *Coordinator) record(rec *AlertRecord) {
	metrics.EventsScoredTotal.WithLabelValues(string(rec.SourceType), string(rec.RiskLevel)).Inc()
	if rec.IsFlagged {
		metrics.FlaggedEventsTotal.WithLabelValues(string(rec.SourceType)).Inc()
	}

	c.mu.Lock()
	idx := (c.start + c.count) % len(c.recent)
	if c.count == len(c.recent) {
		c.start = (c.start + 1) % len(c.recent)
		c.count--
	}
	c.recent[idx] = rec
	c.count++
	c.mu.Unlock()

	for _, s := range c.sinks {
		s.OnAlert(rec)
	}
	if c.publisher != nil {
		c.publisher.Publish(rec)
	}
}

// Recent returns up to RecentCap most recent alerts, oldest first.
func (c *Coordinator) Recent() []*AlertRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*AlertRecord, 0, c.count)
	for i := 0; i < c.count; i++ {
		out = append(out, c.recent[(c.start+i)%len(c.recent)])
	}
	return out
}

// TrackedAccounts reports how many accounts have profile state.
func (c *Coordinator) TrackedAccounts() int {
	return c.profiles.Accounts()
}

func validateTransaction(ev scoring.TransactionEvent) error {
	if ev.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if ev.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if math.IsNaN(ev.Amount) || math.IsInf(ev.Amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrInvalidInput)
	}
	return nil
}

func validateCheck(ev scoring.CheckEvent) error {
	if ev.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if ev.CheckNumber == "" {
		return fmt.Errorf("%w: check number is required", ErrInvalidInput)
	}
	if ev.SignatureMatchScore < 0 || ev.SignatureMatchScore > 1 ||
		math.IsNaN(ev.SignatureMatchScore) {
		return fmt.Errorf("%w: signature match score must be within [0, 1]", ErrInvalidInput)
	}
	return nil
}
