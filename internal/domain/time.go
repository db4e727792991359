package domain

import "time"

// ─── Epoch Millisecond Helpers ──────────────────────────────────────────────

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FromMillis converts epoch milliseconds to a local time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// HourOf returns the local hour of day (0–23) for an epoch-ms timestamp.
func HourOf(ms int64) int {
	return time.UnixMilli(ms).Hour()
}

// NextHour returns the epoch-ms instant at which the next local hour begins
// for the hour containing ms.
func NextHour(ms int64) int64 {
	t := time.UnixMilli(ms)
	next := t.Truncate(time.Minute).
		Add(-time.Duration(t.Minute()) * time.Minute).
		Add(time.Hour)
	return next.UnixMilli()
}

// MinutesBetween returns fractional minutes between two epoch-ms instants.
func MinutesBetween(startMs, endMs int64) float64 {
	return float64(endMs-startMs) / 1000 / 60
}
