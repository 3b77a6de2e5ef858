package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScorer() *Scorer {
	return NewScorer(DefaultOptions(), MustClassifier(DefaultClassifierOptions()))
}

// ---------------------------------------------------------------------------
// Transaction scoring
// ---------------------------------------------------------------------------

func TestScoreTransaction_NormalTransaction(t *testing.T) {
	s := testScorer()

	result := s.ScoreTransaction(
		TransactionEvent{AccountID: "acct-1", Amount: 1100},
		Baseline{Mean: 1000, Stddev: 200, SampleCount: 50, Count24h: 3},
	)

	assert.Equal(t, 0.0, result.RiskScore)
	assert.Equal(t, LevelLow, result.RiskLevel)
	assert.False(t, result.IsFlagged)
	assert.Equal(t, []string{"normal transaction"}, result.Reasons)
}

func TestScoreTransaction_ExtremeDeviationIsCritical(t *testing.T) {
	s := testScorer()

	// mean=1000, stddev=200, count_24h=3: a 50,000 transaction is 245
	// standard deviations out and must land in the critical tier.
	result := s.ScoreTransaction(
		TransactionEvent{AccountID: "acct-1", Amount: 50000},
		Baseline{Mean: 1000, Stddev: 200, SampleCount: 10, Count24h: 3},
	)

	assert.GreaterOrEqual(t, result.RiskScore, 0.9)
	assert.Equal(t, LevelCritical, result.RiskLevel)
	assert.True(t, result.IsFlagged)

	found := false
	for _, r := range result.Reasons {
		if strings.Contains(r, "amount deviation") {
			found = true
		}
	}
	assert.True(t, found, "reasons should include the amount-deviation signal: %v", result.Reasons)
}

func TestScoreTransaction_BrandNewAccount(t *testing.T) {
	s := testScorer()

	// No baseline: variance is undefined, deviation must contribute zero
	// (and not divide by zero). Score is driven by ceiling/velocity only.
	result := s.ScoreTransaction(
		TransactionEvent{AccountID: "fresh", Amount: 500},
		Baseline{SampleCount: 0, Count24h: 1},
	)

	assert.Equal(t, 0.0, result.RiskScore)
	assert.Equal(t, LevelLow, result.RiskLevel)
	assert.False(t, result.IsFlagged)
}

func TestScoreTransaction_NewAccountLargeAmount(t *testing.T) {
	s := testScorer()

	// Absolute ceiling fires independently of history.
	result := s.ScoreTransaction(
		TransactionEvent{AccountID: "fresh", Amount: 250000},
		Baseline{SampleCount: 0, Count24h: 1},
	)

	assert.InDelta(t, 0.2, result.RiskScore, 1e-9)
	require.Len(t, result.Reasons, 1)
	assert.Contains(t, result.Reasons[0], "large amount")
}

func TestScoreTransaction_VelocitySignal(t *testing.T) {
	s := testScorer()

	result := s.ScoreTransaction(
		TransactionEvent{AccountID: "acct-1", Amount: 1000},
		Baseline{Mean: 1000, Stddev: 300, SampleCount: 40, Count24h: 15},
	)

	assert.InDelta(t, 0.3, result.RiskScore, 1e-9)
	require.Len(t, result.Reasons, 1)
	assert.Contains(t, result.Reasons[0], "high frequency: 15 transactions in 24h")
}

func TestScoreTransaction_SignalsStackInTriggerOrder(t *testing.T) {
	s := testScorer()

	// All three signals trigger. Deviation comes first, then velocity,
	// then the ceiling.
	result := s.ScoreTransaction(
		TransactionEvent{AccountID: "acct-1", Amount: 500000},
		Baseline{Mean: 1000, Stddev: 200, SampleCount: 30, Count24h: 20},
	)

	assert.Equal(t, 1.0, result.RiskScore)
	assert.Equal(t, LevelCritical, result.RiskLevel)
	require.Len(t, result.Reasons, 3)
	assert.Contains(t, result.Reasons[0], "amount deviation")
	assert.Contains(t, result.Reasons[1], "high frequency")
	assert.Contains(t, result.Reasons[2], "large amount")
}

func TestScoreTransaction_ScoreAlwaysInRange(t *testing.T) {
	s := testScorer()

	amounts := []float64{0, 1, 999, 1000, 99999, 100001, 1e7, 1e12}
	baselines := []Baseline{
		{},
		{Mean: 1000, Stddev: 1, SampleCount: 2, Count24h: 1},
		{Mean: 1000, Stddev: 200, SampleCount: 100, Count24h: 50},
		{Mean: 1e9, Stddev: 1e6, SampleCount: 5, Count24h: 11},
	}

	for _, amount := range amounts {
		for _, b := range baselines {
			result := s.ScoreTransaction(TransactionEvent{AccountID: "a", Amount: amount}, b)
			if result.RiskScore < 0 || result.RiskScore > 1 {
				t.Fatalf("score %.4f out of range for amount=%.0f baseline=%+v",
					result.RiskScore, amount, b)
			}
			if len(result.Reasons) == 0 {
				t.Fatal("reasons must never be empty")
			}
		}
	}
}

func TestScoreTransaction_MonotoneInSignals(t *testing.T) {
	s := testScorer()
	base := Baseline{Mean: 1000, Stddev: 200, SampleCount: 30, Count24h: 3}

	// Adding a triggering signal never lowers the score.
	deviationOnly := s.ScoreTransaction(TransactionEvent{Amount: 5000}, base)

	withVelocity := base
	withVelocity.Count24h = 20
	deviationAndVelocity := s.ScoreTransaction(TransactionEvent{Amount: 5000}, withVelocity)

	assert.GreaterOrEqual(t, deviationAndVelocity.RiskScore, deviationOnly.RiskScore)
	assert.Greater(t, len(deviationAndVelocity.Reasons), len(deviationOnly.Reasons))
}

func TestScoreTransaction_IdenticalAmountBelowOutlier(t *testing.T) {
	s := testScorer()
	base := Baseline{Mean: 1000, Stddev: 200, SampleCount: 30, Count24h: 2}

	// A transaction at the account's own mean contributes nothing, while
	// a 10x-mean outlier does; repeating the identical amount can never
	// out-score the single outlier.
	identical := s.ScoreTransaction(TransactionEvent{Amount: 1000}, base)
	outlier := s.ScoreTransaction(TransactionEvent{Amount: 10000}, base)

	assert.LessOrEqual(t, identical.RiskScore, outlier.RiskScore)
	assert.Equal(t, 0.0, identical.RiskScore)
	assert.Greater(t, outlier.RiskScore, 0.0)
}

func TestScoreTransaction_DeviationGrowsWithZ(t *testing.T) {
	s := testScorer()
	base := Baseline{Mean: 1000, Stddev: 100, SampleCount: 30, Count24h: 1}

	// Just above threshold: z slightly over 3 → contribution near the base weight.
	nearThreshold := s.ScoreTransaction(TransactionEvent{Amount: 1301}, base)
	farOut := s.ScoreTransaction(TransactionEvent{Amount: 2000}, base)

	assert.InDelta(t, 0.4, nearThreshold.RiskScore, 0.01)
	assert.Greater(t, farOut.RiskScore, nearThreshold.RiskScore)
}

func TestScoreTransaction_ZeroStddevSkipsDeviation(t *testing.T) {
	s := testScorer()

	// Constant spending history: stddev 0. The deviation signal is
	// undefined and must be skipped, not divide by zero.
	result := s.ScoreTransaction(
		TransactionEvent{Amount: 90000},
		Baseline{Mean: 1000, Stddev: 0, SampleCount: 30, Count24h: 2},
	)

	assert.Equal(t, 0.0, result.RiskScore)
	assert.Equal(t, LevelLow, result.RiskLevel)
}

func TestScoreTransaction_Deterministic(t *testing.T) {
	s := testScorer()
	ev := TransactionEvent{AccountID: "acct-1", Amount: 4200}
	b := Baseline{Mean: 900, Stddev: 150, SampleCount: 12, Count24h: 4}

	first := s.ScoreTransaction(ev, b)
	second := s.ScoreTransaction(ev, b)

	assert.Equal(t, first, second)
}

// ---------------------------------------------------------------------------
// Check scoring
// ---------------------------------------------------------------------------

func TestScoreCheck_CleanCheck(t *testing.T) {
	s := testScorer()

	result := s.ScoreCheck(CheckEvent{
		CheckNumber:         "CHK-1001",
		SignatureMatchScore: 0.95,
	})

	assert.Equal(t, 0.0, result.RiskScore)
	assert.Equal(t, LevelLow, result.RiskLevel)
	assert.False(t, result.IsFlagged)
	assert.Equal(t, []string{"no fraud indicators"}, result.Reasons)
}

func TestScoreCheck_StolenAndAlteredIsClampedCritical(t *testing.T) {
	s := testScorer()

	// 0.9 + 0.5 + 0.3 = 1.7 raw, clamped to 1.0, always critical.
	result := s.ScoreCheck(CheckEvent{
		CheckNumber:         "CHK-9999",
		IsStolen:            true,
		IsAltered:           true,
		SignatureMatchScore: 0.1,
	})

	assert.Equal(t, 1.0, result.RiskScore)
	assert.Equal(t, LevelCritical, result.RiskLevel)
	assert.True(t, result.IsFlagged)
	require.Len(t, result.Reasons, 3)
	assert.Equal(t, "check reported stolen", result.Reasons[0])
}

func TestScoreCheck_StackedIndicatorsForceCritical(t *testing.T) {
	s := testScorer()

	// altered (0.5) + duplicate (0.4) = 0.9 raw: forced critical even
	// though no single indicator reaches the critical tier.
	result := s.ScoreCheck(CheckEvent{
		CheckNumber:         "CHK-7777",
		IsAltered:           true,
		IsDuplicate:         true,
		SignatureMatchScore: 0.8,
	})

	assert.Equal(t, LevelCritical, result.RiskLevel)
	assert.True(t, result.IsFlagged)
}

func TestScoreCheck_IndividualIndicators(t *testing.T) {
	s := testScorer()

	tests := []struct {
		name       string
		ev         CheckEvent
		wantScore  float64
		wantLevel  RiskLevel
		wantReason string
	}{
		{"stolen", CheckEvent{IsStolen: true, SignatureMatchScore: 1}, 0.9, LevelCritical, "stolen"},
		{"altered", CheckEvent{IsAltered: true, SignatureMatchScore: 1}, 0.5, LevelMedium, "alteration"},
		{"duplicate", CheckEvent{IsDuplicate: true, SignatureMatchScore: 1}, 0.4, LevelMedium, "duplicate"},
		{"signature", CheckEvent{SignatureMatchScore: 0.3}, 0.3, LevelLow, "signature mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.ScoreCheck(tt.ev)
			assert.InDelta(t, tt.wantScore, result.RiskScore, 1e-9)
			assert.Equal(t, tt.wantLevel, result.RiskLevel)
			require.Len(t, result.Reasons, 1)
			assert.Contains(t, result.Reasons[0], tt.wantReason)
		})
	}
}

func TestScoreCheck_SignatureBoundary(t *testing.T) {
	s := testScorer()

	// Exactly at the cutoff the signature signal does not trigger.
	atCutoff := s.ScoreCheck(CheckEvent{SignatureMatchScore: 0.5})
	belowCutoff := s.ScoreCheck(CheckEvent{SignatureMatchScore: 0.49})

	assert.Equal(t, 0.0, atCutoff.RiskScore)
	assert.InDelta(t, 0.3, belowCutoff.RiskScore, 1e-9)
}
