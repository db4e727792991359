// Package timer implements the timer state machine. It owns the
// {isFocus, start, pause} document, persists every transition to the store,
// and hydrates from snapshot subscriptions so that all devices observing the
// same user converge on one logical timer.
//
// States: Reset (start=nil, pause=nil), Running (start set, pause nil,
// remaining > 0), Paused (both set), Done (remaining == 0). Done is terminal
// for ToggleActive; only ResetStage or NextStage leave it.
package timer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/ebbtide-net/ebbtide/internal/clock"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// Service is the timer state machine for the current identity.
type Service struct {
	store        domain.Store
	clock        *clock.Engine
	focusSeconds int
	relaxSeconds int
	now          func() int64

	mu             sync.Mutex
	uid            string
	local          domain.TimerMemory
	unsubSnapshot  func()
	onActiveChange func(domain.ActiveChange)
	cached         *domain.TimerMemory
}

// New creates a detached timer service. Attach binds it to an identity.
func New(store domain.Store, focusSeconds, relaxSeconds int) *Service {
	s := &Service{
		store:        store,
		clock:        clock.New(focusSeconds),
		focusSeconds: focusSeconds,
		relaxSeconds: relaxSeconds,
		now:          domain.NowMillis,
		local:        domain.DefaultTimerMemory(),
	}
	s.clock.Subscribe(func(remaining int) {
		observability.SecondsRemaining.Set(float64(remaining))
	})
	return s
}

// OnActiveChange sets the play/pause observer. The callback fires before the
// document write so the history ledger sees the pre-transition remaining
// time, exactly like the transition payload it journals.
func (s *Service) OnActiveChange(fn func(domain.ActiveChange)) {
	s.mu.Lock()
	s.onActiveChange = fn
	s.mu.Unlock()
}

// Clock exposes the countdown engine for read-only observation.
func (s *Service) Clock() *clock.Engine { return s.clock }

// Attach binds the service to an identity and begins mirroring its document.
func (s *Service) Attach(uid string) {
	s.Detach()
	s.mu.Lock()
	s.uid = uid
	s.mu.Unlock()
	unsub := s.store.Subscribe(domain.CollectionTimers, uid, s.onSnapshot)
	s.mu.Lock()
	s.unsubSnapshot = unsub
	s.mu.Unlock()
}

// Detach tears down the snapshot subscription so a stale observer can never
// write into another identity's document.
func (s *Service) Detach() {
	s.mu.Lock()
	unsub := s.unsubSnapshot
	s.unsubSnapshot = nil
	s.uid = ""
	s.local = domain.DefaultTimerMemory()
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.clock.Stop()
}

func (s *Service) onSnapshot(body []byte, exists bool) {
	mem := domain.DefaultTimerMemory()
	if exists {
		if err := json.Unmarshal(body, &mem); err != nil {
			log.Printf("timer: decode snapshot: %v", err)
			mem = domain.DefaultTimerMemory()
		}
	}
	s.applyLocal(mem)
}

// applyLocal installs mem as the local view and reconfigures the countdown.
func (s *Service) applyLocal(mem domain.TimerMemory) {
	s.mu.Lock()
	s.local = mem
	s.mu.Unlock()
	s.clock.Configure(mem.Start, mem.Pause, s.maxSecondsFor(mem))
}

func (s *Service) maxSecondsFor(mem domain.TimerMemory) int {
	if mem.IsFocus {
		return s.focusSeconds
	}
	return s.relaxSeconds
}

// ─── Derived State ──────────────────────────────────────────────────────────

// SecondsRemaining returns the displayed countdown value.
func (s *Service) SecondsRemaining() int { return s.clock.SecondsRemaining() }

// IsActive reports whether the timer is counting down.
func (s *Service) IsActive() bool { return s.clock.IsActive() }

// IsDone reports whether the countdown reached zero.
func (s *Service) IsDone() bool { return s.clock.IsDone() }

// IsFocus reports whether the current stage is a focus stage.
func (s *Service) IsFocus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.IsFocus
}

// Stage returns "focus" or "relax".
func (s *Service) Stage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.Stage()
}

// IsReset reports whether the current stage shows its full duration.
func (s *Service) IsReset() bool {
	s.mu.Lock()
	max := s.maxSecondsFor(s.local)
	s.mu.Unlock()
	return s.clock.SecondsRemaining() == max
}

// ─── Operations ─────────────────────────────────────────────────────────────

// ToggleActive flips between Running and Paused. It is a no-op once the
// countdown is Done. Resuming shifts the start anchor forward by the paused
// duration so the remaining time is preserved exactly.
func (s *Service) ToggleActive(ctx context.Context) error {
	s.mu.Lock()
	uid := s.uid
	local := s.local
	notify := s.onActiveChange
	s.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	remaining := s.clock.SecondsRemaining()
	if remaining <= 0 {
		return nil
	}
	newActive := !s.clock.IsActive()
	if notify != nil {
		notify(domain.ActiveChange{
			IsActive:         newActive,
			IsFocus:          local.IsFocus,
			SecondsRemaining: remaining,
		})
	}

	now := s.now()
	// Read-then-conditionally-write: two devices toggling inside the same
	// round trip race, and the later write wins. Accepted.
	remote, exists := s.readRemote(ctx, uid)
	var mem domain.TimerMemory
	switch {
	case newActive && !exists:
		// First ever play.
		mem = domain.DefaultTimerMemory()
		mem.Start = &now
	case newActive:
		start := now
		if remote.Start != nil {
			start = *remote.Start
		}
		pausedFor := int64(0)
		if remote.Pause != nil {
			pausedFor = now - *remote.Pause
		}
		anchor := start + pausedFor
		mem = domain.TimerMemory{IsFocus: remote.IsFocus, Start: &anchor}
	case exists:
		mem = remote
		mem.Pause = &now
		if mem.Start == nil {
			mem.Start = &now
		}
	default:
		mem = domain.TimerMemory{IsFocus: local.IsFocus, Start: &now, Pause: &now}
	}

	kind := "pause"
	if newActive {
		kind = "play"
	}
	observability.TimerTransitions.WithLabelValues(kind).Inc()
	s.applyLocal(mem)
	s.write(ctx, uid, mem)
	return nil
}

// SetActive toggles only when the desired state differs from the current one.
func (s *Service) SetActive(ctx context.Context, active bool) error {
	if s.clock.IsActive() == active {
		return nil
	}
	return s.ToggleActive(ctx)
}

// ResetStage overwrites the document with a reset timer on the current
// stage. A full replace, not a merge: stale fields must not survive.
func (s *Service) ResetStage(ctx context.Context) error {
	s.mu.Lock()
	uid := s.uid
	mem := domain.TimerMemory{IsFocus: s.local.IsFocus}
	s.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	observability.TimerTransitions.WithLabelValues("reset").Inc()
	s.applyLocal(mem)
	s.write(ctx, uid, mem)
	return nil
}

// NextStage flips the stage and resets it; the opposite stage's duration
// applies immediately.
func (s *Service) NextStage(ctx context.Context) error {
	s.mu.Lock()
	uid := s.uid
	mem := domain.TimerMemory{IsFocus: !s.local.IsFocus}
	s.mu.Unlock()
	if uid == "" {
		return domain.ErrNoIdentity
	}
	observability.TimerTransitions.WithLabelValues("next").Inc()
	s.applyLocal(mem)
	s.write(ctx, uid, mem)
	return nil
}

func (s *Service) readRemote(ctx context.Context, uid string) (domain.TimerMemory, bool) {
	body, err := s.store.Get(ctx, domain.CollectionTimers, uid)
	if err != nil {
		if !errors.Is(err, domain.ErrDocNotFound) {
			log.Printf("timer: read document: %v", err)
		}
		return domain.TimerMemory{}, false
	}
	var mem domain.TimerMemory
	if err := json.Unmarshal(body, &mem); err != nil {
		log.Printf("timer: decode document: %v", err)
		return domain.TimerMemory{}, false
	}
	return mem, true
}

// write persists mem. Failures are logged and the local state stays
// optimistic; there is no automatic retry.
func (s *Service) write(ctx context.Context, uid string, mem domain.TimerMemory) {
	body, err := json.Marshal(mem)
	if err != nil {
		log.Printf("timer: encode document: %v", err)
		return
	}
	if err := s.store.Set(ctx, domain.CollectionTimers, uid, body); err != nil {
		observability.StoreWriteFailures.WithLabelValues(domain.CollectionTimers).Inc()
		log.Printf("timer: write document: %v", err)
		return
	}
	observability.StoreWrites.WithLabelValues(domain.CollectionTimers).Inc()
}
