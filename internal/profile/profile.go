// Package profile maintains rolling per-account behavioral statistics
// for fraud scoring.
//
// Each account gets an online mean/variance estimator (Welford's
// algorithm, so variance can never go negative) and a sliding 24-hour
// window of event timestamps. Profiles are created lazily on first
// event. The store is sharded by FNV hash of the account id so updates
// to unrelated accounts never contend on a shared lock; a single
// account's update path is serialized by its own mutex.
package profile

import (
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// shardCount is fixed; bounded memory for the lock table regardless of
// how many accounts are seen.
const shardCount = 64

// DefaultWindow is the velocity counting window.
const DefaultWindow = 24 * time.Hour

// Snapshot is a point-in-time copy of an account's rolling statistics,
// returned by value so callers never observe a profile mid-mutation.
//
// Mean, Stddev and SampleCount describe the samples folded in BEFORE
// the event that produced the snapshot, so an outlier cannot dilute its
// own deviation. Count24h includes the event being applied.
type Snapshot struct {
	AccountID   string
	Mean        float64
	Stddev      float64
	SampleCount int
	Count24h    int
}

type account struct {
	mu sync.Mutex

	// Welford state
	count int
	mean  float64
	m2    float64

	// timestamps within the window, oldest first
	window []time.Time
}

type shard struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

// Store holds rolling statistics for all accounts.
type Store struct {
	shards [shardCount]shard
	window time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithWindow overrides the 24h velocity window (tests).
func WithWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// NewStore creates an empty profile store.
func NewStore(opts ...Option) *Store {
	s := &Store{window: DefaultWindow}
	for i := range s.shards {
		s.shards[i].accounts = make(map[string]*account)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shard(accountID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return &s.shards[h.Sum32()%shardCount]
}

// getOrCreate returns the account entry, creating it lazily.
func (s *Store) getOrCreate(accountID string) *account {
	sh := s.shard(accountID)

	sh.mu.RLock()
	a := sh.accounts[accountID]
	sh.mu.RUnlock()
	if a != nil {
		return a
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if a = sh.accounts[accountID]; a == nil {
		a = &account{}
		sh.accounts[accountID] = a
	}
	return a
}

// Apply atomically records one transaction for the account: the window
// is pruned and extended, a baseline snapshot of the prior samples is
// captured, and the amount is folded into the estimator. The shard lock
// is not held during the update, so unrelated accounts proceed
// independently.
func (s *Store) Apply(accountID string, amount float64, ts time.Time) Snapshot {
	a := s.getOrCreate(accountID)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(ts.Add(-s.window))
	a.window = append(a.window, ts)

	snap := Snapshot{
		AccountID:   accountID,
		Mean:        a.mean,
		Stddev:      a.stddev(),
		SampleCount: a.count,
		Count24h:    len(a.window),
	}

	// Welford update
	a.count++
	delta := amount - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (amount - a.mean)

	return snap
}

// Peek returns the current statistics for an account without mutating
// it. The second return is false when the account has never been seen.
// Count24h is pruned relative to now.
func (s *Store) Peek(accountID string, now time.Time) (Snapshot, bool) {
	sh := s.shard(accountID)
	sh.mu.RLock()
	a := sh.accounts[accountID]
	sh.mu.RUnlock()
	if a == nil {
		return Snapshot{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(now.Add(-s.window))
	return Snapshot{
		AccountID:   accountID,
		Mean:        a.mean,
		Stddev:      a.stddev(),
		SampleCount: a.count,
		Count24h:    len(a.window),
	}, true
}

// Accounts reports how many profiles exist.
func (s *Store) Accounts() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		total += len(s.shards[i].accounts)
		s.shards[i].mu.RUnlock()
	}
	return total
}

// prune drops window entries older than the cutoff. Timestamps arrive
// mostly in order, so this is amortized O(1) per event; a burst after a
// quiet day pays O(window) once. Caller holds a.mu.
func (a *account) prune(cutoff time.Time) {
	i := 0
	for i < len(a.window) && a.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		a.window = append(a.window[:0], a.window[i:]...)
	}
}

// stddev returns the sample standard deviation, or 0 while variance is
// undefined (fewer than 2 samples). Caller holds a.mu.
func (a *account) stddev() float64 {
	if a.count < 2 {
		return 0
	}
	variance := a.m2 / float64(a.count-1)
	if variance < 0 {
		variance = 0 // float round-off guard; Welford keeps m2 non-negative
	}
	return math.Sqrt(variance)
}
