// Package besthours maintains the "most productive hours of day" histogram.
//
// The aggregator watches the history ledger's latest interval. A latest
// interval ending in the future means the timer was just started: any
// previously pending interval is committed into the 24 hourly score buckets
// (scaled by the pending review weight) and the new interval becomes
// pending. A latest interval ending in the past means the timer was just
// paused: the pending interval is updated in place, without scoring.
// Scoring happens only on commit. Transitions are detected by comparing
// interval values against the previously observed one, so stale pending
// state left over from an earlier session can never double-count.
package besthours

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// Period is a named range of hours of the day.
type Period string

const (
	PeriodLateNight    Period = "late-night"
	PeriodEarlyMorning Period = "early-morning"
	PeriodMorning      Period = "morning"
	PeriodNoon         Period = "noon"
	PeriodAfternoon    Period = "afternoon"
	PeriodEvening      Period = "evening"
	PeriodNight        Period = "night"
)

// PeriodForHour maps an hour of day to its period label.
func PeriodForHour(hour int) Period {
	switch {
	case hour <= 4:
		return PeriodLateNight
	case hour <= 7:
		return PeriodEarlyMorning
	case hour <= 11:
		return PeriodMorning
	case hour <= 13:
		return PeriodNoon
	case hour <= 16:
		return PeriodAfternoon
	case hour <= 19:
		return PeriodEvening
	default:
		return PeriodNight
	}
}

// Aggregator maintains the best-hours/{uid} document.
type Aggregator struct {
	store domain.Store
	now   func() int64

	mu            sync.Mutex
	uid           string
	local         domain.BestHoursMemory
	prevLatest    *domain.Interval
	unsubSnapshot func()
	cached        *domain.BestHoursMemory
}

// New creates a detached aggregator.
func New(store domain.Store) *Aggregator {
	return &Aggregator{
		store: store,
		now:   domain.NowMillis,
		local: domain.DefaultBestHoursMemory(),
	}
}

// Attach binds the aggregator to an identity and begins mirroring its
// document.
func (a *Aggregator) Attach(uid string) {
	a.Detach()
	a.mu.Lock()
	a.uid = uid
	a.mu.Unlock()
	unsub := a.store.Subscribe(domain.CollectionBestHours, uid, a.onSnapshot)
	a.mu.Lock()
	a.unsubSnapshot = unsub
	a.mu.Unlock()
}

// Detach tears down the snapshot subscription.
func (a *Aggregator) Detach() {
	a.mu.Lock()
	unsub := a.unsubSnapshot
	a.unsubSnapshot = nil
	a.uid = ""
	a.local = domain.DefaultBestHoursMemory()
	a.prevLatest = nil
	a.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (a *Aggregator) onSnapshot(body []byte, exists bool) {
	mem := domain.DefaultBestHoursMemory()
	if exists {
		if err := json.Unmarshal(body, &mem); err != nil {
			log.Printf("besthours: decode snapshot: %v", err)
			mem = domain.DefaultBestHoursMemory()
		}
	}
	a.mu.Lock()
	a.local = mem
	// Seed the transition detector from the hydrated pending interval so the
	// previous session's leftovers don't read as a fresh play/pause.
	if a.prevLatest == nil {
		if pending, ok := mem.Pending(); ok {
			a.prevLatest = &pending
		}
	}
	a.mu.Unlock()
}

// HandleIntervals reacts to a change in the history ledger. intervals must
// be sorted ascending by start.
func (a *Aggregator) HandleIntervals(ctx context.Context, intervals []domain.Interval) error {
	a.mu.Lock()
	uid := a.uid
	prev := a.prevLatest
	a.mu.Unlock()
	if uid == "" || len(intervals) == 0 {
		return nil
	}
	latest := intervals[len(intervals)-1]
	if prev != nil && *prev == latest {
		return nil
	}
	a.mu.Lock()
	a.prevLatest = &latest
	a.mu.Unlock()

	if latest.End > a.now() {
		return a.commitAndPend(ctx, uid, latest)
	}
	return a.updatePending(ctx, uid, latest)
}

// commitAndPend folds the current pending interval into the score buckets
// and records latest as the new pending interval. A commit resets the
// pending review to okay; with nothing to commit the review is preserved.
func (a *Aggregator) commitAndPend(ctx context.Context, uid string, latest domain.Interval) error {
	mem, _ := a.readRemote(ctx, uid)
	review := mem.PendingReview
	if pending, ok := mem.Pending(); ok {
		score(&mem.Scores, pending, mem.PendingReview.Weight())
		review = domain.ReviewOkay
	}
	next := domain.BestHoursMemory{
		PendingStart:  &latest.Start,
		PendingEnd:    &latest.End,
		PendingReview: review,
		Scores:        mem.Scores,
	}
	a.write(ctx, uid, next)
	return nil
}

// updatePending replaces the pending interval endpoints without scoring.
func (a *Aggregator) updatePending(ctx context.Context, uid string, latest domain.Interval) error {
	mem, _ := a.readRemote(ctx, uid)
	mem.PendingStart = &latest.Start
	mem.PendingEnd = &latest.End
	a.write(ctx, uid, mem)
	return nil
}

// score attributes the interval's weighted minutes to its hour bucket,
// splitting at the hour boundary when start and end fall in different hours.
func score(scores *[24]float64, iv domain.Interval, weight float64) {
	startHour := domain.HourOf(iv.Start)
	endHour := domain.HourOf(iv.End)
	if startHour == endHour {
		scores[startHour] += domain.MinutesBetween(iv.Start, iv.End) * weight
		return
	}
	boundary := domain.NextHour(iv.Start)
	scores[startHour] += domain.MinutesBetween(iv.Start, boundary) * weight
	scores[endHour] += domain.MinutesBetween(boundary, iv.End) * weight
}

// SetPendingReview records the user's rating for the pending interval; it
// takes effect as the weight of the next commit.
func (a *Aggregator) SetPendingReview(ctx context.Context, review domain.Review) error {
	if !review.Valid() {
		return domain.ErrInvalidReview
	}
	a.mu.Lock()
	uid := a.uid
	a.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	mem, _ := a.readRemote(ctx, uid)
	mem.PendingReview = review
	a.write(ctx, uid, mem)
	return nil
}

// ResetHours zeroes all 24 buckets and clears the pending fields. Calling it
// twice yields the same all-zero state as once.
func (a *Aggregator) ResetHours(ctx context.Context) error {
	a.mu.Lock()
	uid := a.uid
	a.prevLatest = nil
	a.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	a.write(ctx, uid, domain.DefaultBestHoursMemory())
	return nil
}

// ─── Derived Views ──────────────────────────────────────────────────────────

// Memory returns the current local view of the document.
func (a *Aggregator) Memory() domain.BestHoursMemory {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local
}

// BestHour returns the hour with the highest score; ties resolve to the
// lowest index.
func (a *Aggregator) BestHour() int {
	mem := a.Memory()
	best := 0
	bestScore := 0.0
	for h, s := range mem.Scores {
		if s > bestScore {
			best = h
			bestScore = s
		}
	}
	return best
}

// BestPeriod returns the period label for the best hour.
func (a *Aggregator) BestPeriod() Period {
	return PeriodForHour(a.BestHour())
}

// NormalizedScores returns scores scaled into [0, 1] for display. An empty
// histogram normalizes to all zeros.
func (a *Aggregator) NormalizedScores() [24]float64 {
	mem := a.Memory()
	max := 0.0
	for _, s := range mem.Scores {
		if s > max {
			max = s
		}
	}
	var out [24]float64
	if max == 0 {
		return out
	}
	for h, s := range mem.Scores {
		out[h] = s / max
	}
	return out
}

// IsReset reports whether every bucket is zero.
func (a *Aggregator) IsReset() bool {
	return a.Memory().IsReset()
}

// PendingReview returns the review that will weight the next commit.
func (a *Aggregator) PendingReview() domain.Review {
	return a.Memory().PendingReview
}

func (a *Aggregator) readRemote(ctx context.Context, uid string) (domain.BestHoursMemory, bool) {
	body, err := a.store.Get(ctx, domain.CollectionBestHours, uid)
	if err != nil {
		if !errors.Is(err, domain.ErrDocNotFound) {
			log.Printf("besthours: read document: %v", err)
		}
		return domain.DefaultBestHoursMemory(), false
	}
	var mem domain.BestHoursMemory
	if err := json.Unmarshal(body, &mem); err != nil {
		log.Printf("besthours: decode document: %v", err)
		return domain.DefaultBestHoursMemory(), false
	}
	return mem, true
}

func (a *Aggregator) write(ctx context.Context, uid string, mem domain.BestHoursMemory) {
	body, err := json.Marshal(mem)
	if err != nil {
		log.Printf("besthours: encode document: %v", err)
		return
	}
	if err := a.store.Set(ctx, domain.CollectionBestHours, uid, body); err != nil {
		observability.StoreWriteFailures.WithLabelValues(domain.CollectionBestHours).Inc()
		log.Printf("besthours: write document: %v", err)
		return
	}
	observability.StoreWrites.WithLabelValues(domain.CollectionBestHours).Inc()
}
