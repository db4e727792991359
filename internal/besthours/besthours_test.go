package besthours

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ebbtide-net/ebbtide/internal/auth"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/memstore"
)

func at(hour, min int) int64 {
	return time.Date(2024, 5, 15, hour, min, 0, 0, time.Local).UnixMilli()
}

func testAggregator(t *testing.T, store *memstore.Store) (*Aggregator, *int64) {
	t.Helper()
	a := New(store)
	now := at(12, 0)
	a.now = func() int64 { return now }
	a.Attach("u1")
	t.Cleanup(a.Detach)
	return a, &now
}

func readMemory(t *testing.T, store *memstore.Store, uid string) domain.BestHoursMemory {
	t.Helper()
	body, err := store.Get(context.Background(), domain.CollectionBestHours, uid)
	if err != nil {
		t.Fatalf("read best-hours doc: %v", err)
	}
	var mem domain.BestHoursMemory
	if err := json.Unmarshal(body, &mem); err != nil {
		t.Fatalf("decode best-hours doc: %v", err)
	}
	return mem
}

// play sends an interval list whose latest entry ends in the future.
func play(t *testing.T, a *Aggregator, intervals ...domain.Interval) {
	t.Helper()
	if err := a.HandleIntervals(context.Background(), intervals); err != nil {
		t.Fatalf("HandleIntervals: %v", err)
	}
}

func TestPlayStoresPendingWithoutScoring(t *testing.T) {
	store := memstore.New()
	a, now := testAggregator(t, store)

	iv := domain.Interval{Start: *now, End: *now + 1500_000}
	play(t, a, iv)

	mem := readMemory(t, store, "u1")
	pending, ok := mem.Pending()
	if !ok || pending != iv {
		t.Errorf("pending = %+v, %v; want %+v", pending, ok, iv)
	}
	if !mem.IsReset() {
		t.Error("no scores should be committed on the first play")
	}
	if mem.PendingReview != domain.ReviewOkay {
		t.Errorf("review = %q, want okay", mem.PendingReview)
	}
}

func TestPauseUpdatesPendingWithoutScoring(t *testing.T) {
	store := memstore.New()
	a, now := testAggregator(t, store)

	*now = at(11, 31)
	started := domain.Interval{Start: at(11, 30), End: at(11, 30) + 1500_000}
	play(t, a, started)

	// Paused: the latest interval now ends in the past.
	*now = at(12, 0)
	paused := domain.Interval{Start: at(11, 30), End: at(11, 50)}
	play(t, a, paused)

	mem := readMemory(t, store, "u1")
	pending, _ := mem.Pending()
	if pending != paused {
		t.Errorf("pending = %+v, want %+v", pending, paused)
	}
	if !mem.IsReset() {
		t.Error("a pause must never score; scoring happens on commit only")
	}
}

func TestNextPlayCommitsPending(t *testing.T) {
	store := memstore.New()
	a, now := testAggregator(t, store)

	// One finished 25-minute interval inside hour 9.
	done := domain.Interval{Start: at(9, 10), End: at(9, 35)}
	play(t, a, domain.Interval{Start: at(9, 10), End: at(9, 10) + 1500_000})
	play(t, a, done)

	// A fresh play commits it and pends the new interval.
	*now = at(14, 0)
	fresh := domain.Interval{Start: *now, End: *now + 1500_000}
	play(t, a, done, fresh)

	mem := readMemory(t, store, "u1")
	if got := mem.Scores[9]; got != 25 {
		t.Errorf("Scores[9] = %v, want 25", got)
	}
	pending, _ := mem.Pending()
	if pending != fresh {
		t.Errorf("pending = %+v, want %+v", pending, fresh)
	}
	if mem.PendingReview != domain.ReviewOkay {
		t.Errorf("review after commit = %q, want okay", mem.PendingReview)
	}
}

func TestCommitAppliesReviewWeight(t *testing.T) {
	tests := []struct {
		review domain.Review
		want   float64
	}{
		{domain.ReviewBad, 10},
		{domain.ReviewOkay, 20},
		{domain.ReviewGood, 30},
	}
	for _, tt := range tests {
		t.Run(string(tt.review), func(t *testing.T) {
			store := memstore.New()
			a, now := testAggregator(t, store)
			ctx := context.Background()

			done := domain.Interval{Start: at(10, 0), End: at(10, 20)}
			play(t, a, domain.Interval{Start: at(10, 0), End: at(10, 0) + 1500_000})
			play(t, a, done)
			if err := a.SetPendingReview(ctx, tt.review); err != nil {
				t.Fatalf("SetPendingReview: %v", err)
			}

			*now = at(15, 0)
			play(t, a, done, domain.Interval{Start: *now, End: *now + 1500_000})

			mem := readMemory(t, store, "u1")
			if got := mem.Scores[10]; got != tt.want {
				t.Errorf("Scores[10] = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommitSplitsAtHourBoundary(t *testing.T) {
	store := memstore.New()
	a, now := testAggregator(t, store)

	// 23:50 to 00:10: ten minutes on each side of midnight.
	start := time.Date(2024, 5, 15, 23, 50, 0, 0, time.Local).UnixMilli()
	end := time.Date(2024, 5, 16, 0, 10, 0, 0, time.Local).UnixMilli()
	done := domain.Interval{Start: start, End: end}

	*now = start
	play(t, a, domain.Interval{Start: start, End: start + 1500_000})
	*now = end + 60_000
	play(t, a, done)
	next := domain.Interval{Start: *now, End: *now + 1500_000}
	play(t, a, done, next)

	mem := readMemory(t, store, "u1")
	if got := mem.Scores[23]; got != 10 {
		t.Errorf("Scores[23] = %v, want 10", got)
	}
	if got := mem.Scores[0]; got != 10 {
		t.Errorf("Scores[0] = %v, want 10", got)
	}
}

func TestUnchangedLatestIsIgnored(t *testing.T) {
	store := memstore.New()
	a, now := testAggregator(t, store)

	iv := domain.Interval{Start: *now, End: *now + 1500_000}
	play(t, a, iv)
	play(t, a, iv) // redelivery of the same ledger state

	mem := readMemory(t, store, "u1")
	if !mem.IsReset() {
		t.Error("an unchanged latest interval must not commit anything")
	}
}

func TestHydratedPendingDoesNotRecommit(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	// A previous session left a pending interval behind.
	leftover := domain.Interval{Start: at(8, 0), End: at(8, 0) + 1500_000}
	mem := domain.DefaultBestHoursMemory()
	mem.PendingStart = &leftover.Start
	mem.PendingEnd = &leftover.End
	body, _ := json.Marshal(mem)
	store.Set(ctx, domain.CollectionBestHours, "u1", body)

	a := New(store)
	now := at(8, 5)
	a.now = func() int64 { return now }
	a.Attach("u1")
	defer a.Detach()

	// The ledger redelivers the same interval on hydrate: no transition.
	if err := a.HandleIntervals(ctx, []domain.Interval{leftover}); err != nil {
		t.Fatal(err)
	}
	got := readMemory(t, store, "u1")
	if !got.IsReset() {
		t.Error("hydrated pending state must not be re-committed")
	}
}

func TestSetPendingReview(t *testing.T) {
	store := memstore.New()
	a, _ := testAggregator(t, store)
	ctx := context.Background()

	if err := a.SetPendingReview(ctx, "great"); !errors.Is(err, domain.ErrInvalidReview) {
		t.Errorf("err = %v, want ErrInvalidReview", err)
	}

	if err := a.SetPendingReview(ctx, domain.ReviewGood); err != nil {
		t.Fatalf("SetPendingReview: %v", err)
	}
	mem := readMemory(t, store, "u1")
	if mem.PendingReview != domain.ReviewGood {
		t.Errorf("review = %q, want good", mem.PendingReview)
	}
}

func TestResetHoursIsIdempotent(t *testing.T) {
	store := memstore.New()
	a, now := testAggregator(t, store)
	ctx := context.Background()

	done := domain.Interval{Start: at(9, 0), End: at(9, 25)}
	play(t, a, domain.Interval{Start: at(9, 0), End: at(9, 0) + 1500_000})
	play(t, a, done)
	*now = at(13, 0)
	play(t, a, done, domain.Interval{Start: *now, End: *now + 1500_000})
	if a.IsReset() {
		t.Fatal("expected a committed score before reset")
	}

	if err := a.ResetHours(ctx); err != nil {
		t.Fatalf("ResetHours: %v", err)
	}
	first := readMemory(t, store, "u1")
	if err := a.ResetHours(ctx); err != nil {
		t.Fatalf("second ResetHours: %v", err)
	}
	second := readMemory(t, store, "u1")

	if !first.IsReset() || !second.IsReset() {
		t.Error("both resets should yield an all-zero histogram")
	}
	if first.PendingStart != nil || second.PendingStart != nil {
		t.Error("reset should clear the pending interval")
	}
	if !a.IsReset() {
		t.Error("aggregator view should be reset")
	}
}

func TestDerivedViews(t *testing.T) {
	store := memstore.New()
	a, _ := testAggregator(t, store)

	if got := a.NormalizedScores(); got != [24]float64{} {
		t.Errorf("empty histogram should normalize to zeros, got %v", got)
	}
	if got := a.BestHour(); got != 0 {
		t.Errorf("BestHour on empty histogram = %d, want 0", got)
	}

	mem := domain.DefaultBestHoursMemory()
	mem.Scores[9] = 50
	mem.Scores[16] = 25
	body, _ := json.Marshal(mem)
	store.Set(context.Background(), domain.CollectionBestHours, "u1", body)

	if got := a.BestHour(); got != 9 {
		t.Errorf("BestHour = %d, want 9", got)
	}
	if got := a.BestPeriod(); got != PeriodMorning {
		t.Errorf("BestPeriod = %q, want morning", got)
	}
	norm := a.NormalizedScores()
	if norm[9] != 1 || norm[16] != 0.5 {
		t.Errorf("NormalizedScores[9]=%v [16]=%v, want 1 and 0.5", norm[9], norm[16])
	}
}

func TestPeriodForHour(t *testing.T) {
	tests := []struct {
		hour int
		want Period
	}{
		{0, PeriodLateNight},
		{4, PeriodLateNight},
		{5, PeriodEarlyMorning},
		{7, PeriodEarlyMorning},
		{8, PeriodMorning},
		{11, PeriodMorning},
		{12, PeriodNoon},
		{13, PeriodNoon},
		{14, PeriodAfternoon},
		{16, PeriodAfternoon},
		{17, PeriodEvening},
		{19, PeriodEvening},
		{20, PeriodNight},
		{23, PeriodNight},
	}
	for _, tt := range tests {
		if got := PeriodForHour(tt.hour); got != tt.want {
			t.Errorf("PeriodForHour(%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestMigrationRestoresHistogramOnFallback(t *testing.T) {
	store := memstore.New()
	authSvc := auth.New(store, auth.TokenAuthenticator{})
	a := New(store)
	unsub := a.RegisterMigration(authSvc)
	defer unsub()
	authSvc.SubscribeIdentityChanged(func(ident domain.Identity) {
		a.Attach(ident.UID)
	})
	defer a.Detach()
	ctx := context.Background()

	if err := authSvc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	anon, _ := authSvc.Current()

	mem := domain.DefaultBestHoursMemory()
	mem.Scores[0] = 5
	body, _ := json.Marshal(mem)
	store.Set(ctx, domain.CollectionBestHours, anon.UID, body)

	// Failed durable sign-in: the histogram follows onto the fallback
	// anonymous identity.
	if err := authSvc.SignIn(ctx, "bogus"); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("SignIn err = %v, want ErrAuthFailed", err)
	}
	fresh, _ := authSvc.Current()

	got := readMemory(t, store, fresh.UID)
	if got.Scores[0] != 5 {
		t.Errorf("migrated Scores[0] = %v, want 5", got.Scores[0])
	}
	if _, err := store.Get(ctx, domain.CollectionBestHours, anon.UID); !errors.Is(err, domain.ErrDocNotFound) {
		t.Errorf("old doc should be deleted, err = %v", err)
	}

	// Signing out of a durable identity carries nothing.
	if err := authSvc.SignIn(ctx, "user:alice"); err != nil {
		t.Fatal(err)
	}
	if err := authSvc.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	last, _ := authSvc.Current()
	if _, err := store.Get(ctx, domain.CollectionBestHours, last.UID); !errors.Is(err, domain.ErrDocNotFound) {
		t.Errorf("fresh identity should start with no histogram, err = %v", err)
	}
}
