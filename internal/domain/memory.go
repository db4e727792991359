// Package domain contains the pure document shapes shared by every Ebbtide
// client and the daemon. This is the innermost ring of the architecture; it
// depends on nothing but the standard library.
//
// All timestamps are Unix epoch milliseconds, matching the wire format of the
// per-user documents. A missing timestamp is represented by a nil pointer so
// that "never started" and "started at epoch" stay distinguishable.
package domain

import "sort"

// Default stage durations in seconds.
const (
	DefaultFocusSeconds = 25 * 60
	DefaultRelaxSeconds = 5 * 60
)

// DayMillis is one day in epoch milliseconds.
const DayMillis = 24 * 60 * 60 * 1000

// Timer stages.
const (
	StageFocus = "focus"
	StageRelax = "relax"
)

// ─── Timer Document ─────────────────────────────────────────────────────────

// TimerMemory is the timers/{uid} document: the authoritative state of a
// user's single logical timer.
//
// Invariant: Pause != nil implies Start != nil. Start == nil && Pause == nil
// denotes a reset timer.
type TimerMemory struct {
	IsFocus bool   `json:"isFocus"`
	Start   *int64 `json:"start"`
	Pause   *int64 `json:"pause"`
}

// DefaultTimerMemory returns a reset focus-stage timer.
func DefaultTimerMemory() TimerMemory {
	return TimerMemory{IsFocus: true}
}

// IsRunning reports whether the timer is counting down.
func (m TimerMemory) IsRunning() bool {
	return m.Start != nil && m.Pause == nil
}

// IsPaused reports whether the timer started and was then paused.
func (m TimerMemory) IsPaused() bool {
	return m.Start != nil && m.Pause != nil
}

// Stage returns the stage name for the document.
func (m TimerMemory) Stage() string {
	if m.IsFocus {
		return StageFocus
	}
	return StageRelax
}

// ElapsedMillis computes how long the timer has been running as of now
// (epoch ms). A paused timer is frozen at its pause instant.
func (m TimerMemory) ElapsedMillis(now int64) int64 {
	start := now
	if m.Start != nil {
		start = *m.Start
	}
	end := now
	if m.Pause != nil {
		end = *m.Pause
	}
	if end < start {
		return 0
	}
	return end - start
}

// ActiveChange describes a single play/pause transition, observed by the
// history ledger and, transitively, the best-hours aggregator.
type ActiveChange struct {
	IsActive         bool
	IsFocus          bool
	SecondsRemaining int
}

// ─── History Document ───────────────────────────────────────────────────────

// Interval is one focus interval. End may be in the future: that means the
// interval is running and scheduled to complete at End unless paused sooner.
type Interval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// HistoryMemory is the history/{uid} document: an append-only map of focus
// interval start → end timestamps. encoding/json renders integer keys as
// decimal strings, matching the stored document shape.
type HistoryMemory map[int64]int64

// Intervals returns the ledger entries sorted ascending by start.
func (m HistoryMemory) Intervals() []Interval {
	out := make([]Interval, 0, len(m))
	for start, end := range m {
		out = append(out, Interval{Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Latest returns the interval with the greatest start key.
func (m HistoryMemory) Latest() (Interval, bool) {
	var latest Interval
	found := false
	for start, end := range m {
		if !found || start > latest.Start {
			latest = Interval{Start: start, End: end}
			found = true
		}
	}
	return latest, found
}

// Prune removes every interval whose end is at or before cutoff and reports
// how many entries were dropped.
func (m HistoryMemory) Prune(cutoff int64) int {
	removed := 0
	for start, end := range m {
		if end <= cutoff {
			delete(m, start)
			removed++
		}
	}
	return removed
}

// ─── Best-Hours Document ────────────────────────────────────────────────────

// Review is the user's qualitative rating of a focus interval. It scales the
// interval's contribution when the pending interval is committed.
type Review string

const (
	ReviewBad  Review = "bad"
	ReviewOkay Review = "okay"
	ReviewGood Review = "good"
)

// Weight returns the score multiplier for the review.
func (r Review) Weight() float64 {
	switch r {
	case ReviewBad:
		return 0.5
	case ReviewGood:
		return 1.5
	default:
		return 1.0
	}
}

// Valid reports whether r is a known review value.
func (r Review) Valid() bool {
	return r == ReviewBad || r == ReviewOkay || r == ReviewGood
}

// BestHoursMemory is the best-hours/{uid} document. Scores[h] accumulates
// weighted focus minutes attributed to hour-of-day h. At most one pending
// interval exists at a time; it must be committed into Scores before a
// pending interval with a different start may replace it.
type BestHoursMemory struct {
	PendingStart  *int64      `json:"pendingStart,omitempty"`
	PendingEnd    *int64      `json:"pendingEnd,omitempty"`
	PendingReview Review      `json:"pendingReview"`
	Scores        [24]float64 `json:"scores"`
}

// DefaultBestHoursMemory returns an empty histogram with an okay review.
func DefaultBestHoursMemory() BestHoursMemory {
	return BestHoursMemory{PendingReview: ReviewOkay}
}

// Pending returns the pending interval, if both endpoints are recorded.
func (m BestHoursMemory) Pending() (Interval, bool) {
	if m.PendingStart == nil || m.PendingEnd == nil {
		return Interval{}, false
	}
	return Interval{Start: *m.PendingStart, End: *m.PendingEnd}, true
}

// IsReset reports whether every score bucket is zero.
func (m BestHoursMemory) IsReset() bool {
	for _, s := range m.Scores {
		if s != 0 {
			return false
		}
	}
	return true
}

// ─── Last-Active Document ───────────────────────────────────────────────────

// LastActive is the last-active/{uid} document, read by the external
// inactivity cleanup job.
type LastActive struct {
	Timestamp int64 `json:"timestamp"`
}
