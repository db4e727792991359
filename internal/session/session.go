// Package session composes the timer, history, and best-hours services over
// one identity service and document store. It is the only place that knows
// the wiring: play/pause transitions flow from the timer into the ledger,
// ledger changes flow into the aggregator, and identity changes re-parent
// all three snapshot subscriptions.
//
// Ordering matters on an identity change: the migration bridge's hooks run
// inside the auth service before the identity-changed notification, so by
// the time attach re-subscribes here, any migrated documents are already in
// place and the initial hydrate observes them.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ebbtide-net/ebbtide/internal/auth"
	"github.com/ebbtide-net/ebbtide/internal/besthours"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/history"
	"github.com/ebbtide-net/ebbtide/internal/timer"
)

// Config carries the stage durations and history retention.
type Config struct {
	FocusSeconds int
	RelaxSeconds int
	Retention    time.Duration
}

// DefaultConfig returns the standard Pomodoro durations and two-day
// retention.
func DefaultConfig() Config {
	return Config{
		FocusSeconds: domain.DefaultFocusSeconds,
		RelaxSeconds: domain.DefaultRelaxSeconds,
		Retention:    48 * time.Hour,
	}
}

// State is a point-in-time snapshot of the logical timer, as exposed over
// the API and the event feed.
type State struct {
	Stage            string `json:"stage"`
	SecondsRemaining int    `json:"secondsRemaining"`
	IsActive         bool   `json:"isActive"`
	IsDone           bool   `json:"isDone"`
	IsReset          bool   `json:"isReset"`
}

// Session binds the three per-user services to the current identity.
type Session struct {
	auth    *auth.Service
	timer   *timer.Service
	history *history.Ledger
	hours   *besthours.Aggregator
	unsubs  []func()
}

// New wires the services together. Nothing is attached until Start resolves
// an identity.
func New(store domain.Store, authSvc *auth.Service, cfg Config) *Session {
	s := &Session{
		auth:    authSvc,
		timer:   timer.New(store, cfg.FocusSeconds, cfg.RelaxSeconds),
		history: history.New(store, cfg.FocusSeconds, cfg.Retention),
		hours:   besthours.New(store),
	}
	s.timer.OnActiveChange(func(ch domain.ActiveChange) {
		if err := s.history.HandleActiveChange(context.Background(), ch); err != nil &&
			!errors.Is(err, domain.ErrNoIdentity) {
			log.Printf("session: journal transition: %v", err)
		}
	})
	s.unsubs = append(s.unsubs,
		s.history.SubscribeIntervals(func(intervals []domain.Interval) {
			if err := s.hours.HandleIntervals(context.Background(), intervals); err != nil {
				log.Printf("session: aggregate intervals: %v", err)
			}
		}),
		s.timer.RegisterMigration(authSvc),
		s.history.RegisterMigration(authSvc),
		s.hours.RegisterMigration(authSvc),
		authSvc.SubscribeIdentityChanged(func(ident domain.Identity) {
			s.attach(ident.UID)
		}),
	)
	return s
}

// Start resolves the initial identity, which attaches every service.
func (s *Session) Start(ctx context.Context) error {
	return s.auth.Start(ctx)
}

// attach re-parents all snapshot subscriptions onto uid. The aggregator
// attaches first so its transition detector is hydrated before ledger
// snapshots start flowing through it.
func (s *Session) attach(uid string) {
	s.hours.Attach(uid)
	s.history.Attach(uid)
	s.timer.Attach(uid)
	if err := s.history.Cleanup(context.Background()); err != nil &&
		!errors.Is(err, domain.ErrNoIdentity) {
		log.Printf("session: history cleanup: %v", err)
	}
}

// Close detaches everything and drops all bridge subscriptions.
func (s *Session) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.timer.Detach()
	s.history.Detach()
	s.hours.Detach()
}

// Timer returns the timer state machine.
func (s *Session) Timer() *timer.Service { return s.timer }

// History returns the interval ledger.
func (s *Session) History() *history.Ledger { return s.history }

// BestHours returns the productivity aggregator.
func (s *Session) BestHours() *besthours.Aggregator { return s.hours }

// Auth returns the identity service.
func (s *Session) Auth() *auth.Service { return s.auth }

// State snapshots the logical timer.
func (s *Session) State() State {
	return State{
		Stage:            s.timer.Stage(),
		SecondsRemaining: s.timer.SecondsRemaining(),
		IsActive:         s.timer.IsActive(),
		IsDone:           s.timer.IsDone(),
		IsReset:          s.timer.IsReset(),
	}
}

// SubscribeState registers an observer notified on every countdown update.
func (s *Session) SubscribeState(fn func(State)) func() {
	return s.timer.Clock().Subscribe(func(int) {
		fn(s.State())
	})
}
