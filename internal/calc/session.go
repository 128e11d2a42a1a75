package calc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hisab-app/backend-hisab/internal/obs"
	"github.com/hisab-app/backend-hisab/internal/pricing"
	"github.com/hisab-app/backend-hisab/internal/rates"
)

// State describes where a session is in its recomputation lifecycle.
type State int

const (
	// StateIdle means no items have been submitted, or the rows were cleared.
	// Totals are unset, which is distinct from totals that sum to zero.
	StateIdle State = iota
	// StateCalculating means a recomputation has been accepted but its
	// results are not published yet.
	StateCalculating
	// StateReady means the snapshot holds the totals for the latest
	// submission that completed.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateCalculating:
		return "calculating"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// Snapshot is an immutable view of the session's latest published results.
// Totals and VATRate are nil while the session is idle.
type Snapshot struct {
	State   State
	Seq     uint64
	Items   []pricing.ItemResult
	Totals  *pricing.DocumentTotals
	VATRate *decimal.Decimal
	Warning string
}

// Session owns recomputation for one editing context (one open document
// form). Submissions are debounced and tagged with a sequence number;
// results arriving for a superseded sequence are discarded so stale totals
// never overwrite fresher ones.
type Session struct {
	Rates       rates.Provider
	Debounce    time.Duration
	RateTimeout time.Duration
	Logger      zerolog.Logger
	// OnPublish is invoked outside the session lock every time a new
	// snapshot becomes visible. Used to persist totals for draft documents.
	OnPublish func(Snapshot)

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	snap   Snapshot
	closed bool
}

// Submit replaces the session's item collection and schedules a recompute.
// An empty collection resets the session to idle immediately; any in-flight
// recomputation for an earlier submission is superseded either way.
func (s *Session) Submit(items []pricing.LineItem) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(items) == 0 {
		s.snap = Snapshot{State: StateIdle, Seq: seq}
		snap := s.snap
		s.mu.Unlock()
		s.publish(snap)
		return
	}
	s.snap.State = StateCalculating
	s.snap.Seq = seq

	copied := make([]pricing.LineItem, len(items))
	copy(copied, items)
	if s.Debounce <= 0 {
		s.mu.Unlock()
		s.compute(seq, copied)
		return
	}
	s.timer = time.AfterFunc(s.Debounce, func() { s.compute(seq, copied) })
	s.mu.Unlock()
}

// Snapshot returns the latest published snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Close discards the session. Pending recomputations are cancelled and
// in-flight ones are dropped on arrival.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) rateTimeout() time.Duration {
	if s.RateTimeout <= 0 {
		return 3 * time.Second
	}
	return s.RateTimeout
}

func (s *Session) compute(seq uint64, items []pricing.LineItem) {
	ctx, cancel := context.WithTimeout(context.Background(), s.rateTimeout())
	defer cancel()

	var (
		rate    decimal.Decimal
		rateErr error
	)
	if s.Rates != nil {
		rate, rateErr = s.Rates.CurrentRate(ctx)
	} else {
		rateErr = rates.ErrUnavailable
	}

	if rateErr != nil {
		s.Logger.Warn().Err(rateErr).Uint64("seq", seq).Msg("vat rate lookup failed")
		s.mu.Lock()
		if seq != s.seq || s.closed {
			s.mu.Unlock()
			obs.CalcSessionSuperseded.Inc()
			return
		}
		// Keep last good totals when we have them, otherwise fall back to
		// idle. Either way the failure is a warning, never a hard error.
		if s.snap.Totals != nil {
			s.snap.State = StateReady
			s.snap.Seq = seq
			s.snap.Warning = "vat rate unavailable"
		} else {
			s.snap = Snapshot{State: StateIdle, Seq: seq, Warning: "vat rate unavailable"}
		}
		snap := s.snap
		s.mu.Unlock()
		s.publish(snap)
		return
	}

	results := pricing.CalculateItems(items, rate)
	totals := pricing.Aggregate(results)

	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		obs.CalcSessionSuperseded.Inc()
		return
	}
	s.snap = Snapshot{
		State:   StateReady,
		Seq:     seq,
		Items:   results,
		Totals:  &totals,
		VATRate: &rate,
	}
	snap := s.snap
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Session) publish(snap Snapshot) {
	obs.CalcSessionPublishTotal.WithLabelValues(snap.State.String()).Inc()
	if s.OnPublish != nil {
		s.OnPublish(snap)
	}
}
