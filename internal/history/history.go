// Package history implements the focus-interval ledger: an append-only map
// of interval start → end timestamps with a two-day retention policy.
//
// An interval whose end is still in the future is running and scheduled to
// complete at that end unless paused sooner; a pause overwrites the end with
// the actual pause instant. Relax stages are not journaled.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// Ledger maintains the history/{uid} document for the current identity.
type Ledger struct {
	store        domain.Store
	focusSeconds int
	retention    time.Duration
	now          func() int64

	mu            sync.Mutex
	uid           string
	local         domain.HistoryMemory
	unsubSnapshot func()
	nextSub       int
	subs          map[int]func([]domain.Interval)
	cached        domain.HistoryMemory
}

// New creates a detached ledger. retention bounds how long completed
// intervals are kept; focusSeconds sizes the provisional first interval.
func New(store domain.Store, focusSeconds int, retention time.Duration) *Ledger {
	return &Ledger{
		store:        store,
		focusSeconds: focusSeconds,
		retention:    retention,
		now:          domain.NowMillis,
		local:        domain.HistoryMemory{},
		subs:         make(map[int]func([]domain.Interval)),
	}
}

// Attach binds the ledger to an identity and begins mirroring its document.
func (l *Ledger) Attach(uid string) {
	l.Detach()
	l.mu.Lock()
	l.uid = uid
	l.mu.Unlock()
	unsub := l.store.Subscribe(domain.CollectionHistory, uid, l.onSnapshot)
	l.mu.Lock()
	l.unsubSnapshot = unsub
	l.mu.Unlock()
}

// Detach tears down the snapshot subscription.
func (l *Ledger) Detach() {
	l.mu.Lock()
	unsub := l.unsubSnapshot
	l.unsubSnapshot = nil
	l.uid = ""
	l.local = domain.HistoryMemory{}
	l.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (l *Ledger) onSnapshot(body []byte, exists bool) {
	mem := domain.HistoryMemory{}
	if exists {
		if err := json.Unmarshal(body, &mem); err != nil {
			log.Printf("history: decode snapshot: %v", err)
			mem = domain.HistoryMemory{}
		}
	}
	l.mu.Lock()
	l.local = mem
	fns := make([]func([]domain.Interval), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	intervals := mem.Intervals()
	for _, fn := range fns {
		fn(intervals)
	}
}

// Intervals returns the ledger entries sorted ascending by start.
func (l *Ledger) Intervals() []domain.Interval {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local.Intervals()
}

// SubscribeIntervals registers an observer for ledger changes; the
// best-hours aggregator reacts to these to detect play/pause transitions.
func (l *Ledger) SubscribeIntervals(fn func([]domain.Interval)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// HandleActiveChange journals a play/pause transition. Relax-stage
// transitions are ignored entirely.
func (l *Ledger) HandleActiveChange(ctx context.Context, ch domain.ActiveChange) error {
	if !ch.IsFocus {
		return nil
	}
	if ch.IsActive {
		return l.recordPlay(ctx, ch.SecondsRemaining)
	}
	return l.recordPause(ctx)
}

// recordPlay opens a provisional interval ending when the countdown would
// complete uninterrupted. The first ever play creates the document with a
// full focus-length interval.
func (l *Ledger) recordPlay(ctx context.Context, secondsRemaining int) error {
	l.mu.Lock()
	uid := l.uid
	l.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	now := l.now()
	mem, exists := l.readRemote(ctx, uid)
	if !exists {
		mem = domain.HistoryMemory{now: now + int64(l.focusSeconds)*1000}
	} else {
		mem[now] = now + int64(secondsRemaining)*1000
	}
	l.write(ctx, uid, mem)
	return nil
}

// recordPause closes the most recent interval at the actual pause time.
func (l *Ledger) recordPause(ctx context.Context) error {
	l.mu.Lock()
	uid := l.uid
	l.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	mem, exists := l.readRemote(ctx, uid)
	if !exists {
		return nil
	}
	latest, ok := mem.Latest()
	if !ok {
		return nil
	}
	mem[latest.Start] = l.now()
	l.write(ctx, uid, mem)
	return nil
}

// Cleanup drops intervals that ended more than the retention period ago. It
// runs once per attach; missing a run only leaves stale rows for the next
// session to collect.
func (l *Ledger) Cleanup(ctx context.Context) error {
	l.mu.Lock()
	uid := l.uid
	l.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	mem, exists := l.readRemote(ctx, uid)
	if !exists {
		return nil
	}
	cutoff := l.now() - l.retention.Milliseconds()
	removed := mem.Prune(cutoff)
	if removed == 0 {
		return nil
	}
	observability.HistoryPruned.Add(float64(removed))
	l.write(ctx, uid, mem)
	return nil
}

func (l *Ledger) readRemote(ctx context.Context, uid string) (domain.HistoryMemory, bool) {
	body, err := l.store.Get(ctx, domain.CollectionHistory, uid)
	if err != nil {
		if !errors.Is(err, domain.ErrDocNotFound) {
			log.Printf("history: read document: %v", err)
		}
		return nil, false
	}
	var mem domain.HistoryMemory
	if err := json.Unmarshal(body, &mem); err != nil {
		log.Printf("history: decode document: %v", err)
		return nil, false
	}
	return mem, true
}

func (l *Ledger) write(ctx context.Context, uid string, mem domain.HistoryMemory) {
	body, err := json.Marshal(mem)
	if err != nil {
		log.Printf("history: encode document: %v", err)
		return
	}
	if err := l.store.Set(ctx, domain.CollectionHistory, uid, body); err != nil {
		observability.StoreWriteFailures.WithLabelValues(domain.CollectionHistory).Inc()
		log.Printf("history: write document: %v", err)
		return
	}
	observability.StoreWrites.WithLabelValues(domain.CollectionHistory).Inc()
}
