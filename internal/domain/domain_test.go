package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func ms(v int64) *int64 { return &v }

func TestTimerMemoryStates(t *testing.T) {
	tests := []struct {
		name    string
		mem     TimerMemory
		running bool
		paused  bool
	}{
		{"reset", TimerMemory{IsFocus: true}, false, false},
		{"running", TimerMemory{IsFocus: true, Start: ms(1000)}, true, false},
		{"paused", TimerMemory{IsFocus: true, Start: ms(1000), Pause: ms(2000)}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mem.IsRunning(); got != tt.running {
				t.Errorf("IsRunning() = %v, want %v", got, tt.running)
			}
			if got := tt.mem.IsPaused(); got != tt.paused {
				t.Errorf("IsPaused() = %v, want %v", got, tt.paused)
			}
		})
	}
}

func TestTimerMemoryElapsedMillis(t *testing.T) {
	now := int64(10_000)

	tests := []struct {
		name string
		mem  TimerMemory
		want int64
	}{
		{"reset", TimerMemory{}, 0},
		{"running", TimerMemory{Start: ms(4_000)}, 6_000},
		{"paused frozen", TimerMemory{Start: ms(4_000), Pause: ms(7_000)}, 3_000},
		{"future start clamps", TimerMemory{Start: ms(20_000)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mem.ElapsedMillis(now); got != tt.want {
				t.Errorf("ElapsedMillis(%d) = %d, want %d", now, got, tt.want)
			}
		})
	}
}

func TestTimerMemoryStage(t *testing.T) {
	if got := (TimerMemory{IsFocus: true}).Stage(); got != StageFocus {
		t.Errorf("Stage() = %q, want %q", got, StageFocus)
	}
	if got := (TimerMemory{}).Stage(); got != StageRelax {
		t.Errorf("Stage() = %q, want %q", got, StageRelax)
	}
}

func TestHistoryMemoryIntervalsSorted(t *testing.T) {
	mem := HistoryMemory{300: 400, 100: 200, 500: 600}

	got := mem.Intervals()
	want := []Interval{{100, 200}, {300, 400}, {500, 600}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Intervals()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHistoryMemoryLatest(t *testing.T) {
	if _, ok := (HistoryMemory{}).Latest(); ok {
		t.Error("Latest() on empty ledger should report not found")
	}

	mem := HistoryMemory{100: 200, 300: 400, 250: 350}
	latest, ok := mem.Latest()
	if !ok {
		t.Fatal("Latest() should find an entry")
	}
	if latest != (Interval{300, 400}) {
		t.Errorf("Latest() = %+v, want {300 400}", latest)
	}
}

func TestHistoryMemoryPrune(t *testing.T) {
	mem := HistoryMemory{
		100: 150, // stale
		200: 500, // end exactly at cutoff: stale
		300: 501, // fresh
		600: 700, // fresh
	}

	removed := mem.Prune(500)
	if removed != 2 {
		t.Errorf("Prune removed %d, want 2", removed)
	}
	if len(mem) != 2 {
		t.Errorf("ledger has %d entries after prune, want 2", len(mem))
	}
	if _, stale := mem[100]; stale {
		t.Error("entry 100 should be pruned")
	}
	if _, fresh := mem[300]; !fresh {
		t.Error("entry 300 should survive")
	}
}

func TestHistoryMemoryJSONKeys(t *testing.T) {
	data, err := json.Marshal(HistoryMemory{1700000000000: 1700000060000})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"1700000000000":1700000060000}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back HistoryMemory
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back[1700000000000] != 1700000060000 {
		t.Errorf("Unmarshal lost the entry: %+v", back)
	}
}

func TestReviewWeight(t *testing.T) {
	tests := []struct {
		review Review
		want   float64
	}{
		{ReviewBad, 0.5},
		{ReviewOkay, 1.0},
		{ReviewGood, 1.5},
		{Review(""), 1.0},
	}
	for _, tt := range tests {
		if got := tt.review.Weight(); got != tt.want {
			t.Errorf("Weight(%q) = %v, want %v", tt.review, got, tt.want)
		}
	}
}

func TestReviewValid(t *testing.T) {
	for _, r := range []Review{ReviewBad, ReviewOkay, ReviewGood} {
		if !r.Valid() {
			t.Errorf("Valid(%q) = false, want true", r)
		}
	}
	if Review("great").Valid() {
		t.Error(`Valid("great") = true, want false`)
	}
}

func TestBestHoursMemoryPending(t *testing.T) {
	mem := DefaultBestHoursMemory()
	if _, ok := mem.Pending(); ok {
		t.Error("default memory should have no pending interval")
	}
	if !mem.IsReset() {
		t.Error("default memory should be reset")
	}

	mem.PendingStart = ms(100)
	if _, ok := mem.Pending(); ok {
		t.Error("half a pending interval should not count")
	}

	mem.PendingEnd = ms(200)
	iv, ok := mem.Pending()
	if !ok || iv != (Interval{100, 200}) {
		t.Errorf("Pending() = %+v, %v; want {100 200}, true", iv, ok)
	}

	mem.Scores[9] = 12.5
	if mem.IsReset() {
		t.Error("memory with a scored bucket is not reset")
	}
}

func TestNextHour(t *testing.T) {
	base := time.Date(2024, 3, 10, 23, 50, 12, 345e6, time.Local)

	got := NextHour(base.UnixMilli())
	want := time.Date(2024, 3, 10, 23, 0, 0, 0, time.Local).Add(time.Hour).UnixMilli()
	if got != want {
		t.Errorf("NextHour = %d (%s), want %d (%s)",
			got, FromMillis(got), want, FromMillis(want))
	}

	// Exactly on the hour advances a full hour.
	onHour := time.Date(2024, 3, 10, 14, 0, 0, 0, time.Local)
	got = NextHour(onHour.UnixMilli())
	want = onHour.Add(time.Hour).UnixMilli()
	if got != want {
		t.Errorf("NextHour on the hour = %d, want %d", got, want)
	}
}

func TestHourOf(t *testing.T) {
	at := time.Date(2024, 7, 1, 16, 30, 0, 0, time.Local)
	if got := HourOf(at.UnixMilli()); got != 16 {
		t.Errorf("HourOf = %d, want 16", got)
	}
}

func TestMinutesBetween(t *testing.T) {
	if got := MinutesBetween(0, 90_000); got != 1.5 {
		t.Errorf("MinutesBetween = %v, want 1.5", got)
	}
	if got := MinutesBetween(1000, 1000); got != 0 {
		t.Errorf("MinutesBetween same instant = %v, want 0", got)
	}
}
