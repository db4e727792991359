package timer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/ebbtide-net/ebbtide/internal/auth"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// RegisterMigration subscribes the timer document to the identity migration
// bridge: the outgoing anonymous identity's document is cached and deleted
// before the credential is discarded, and written to the next identity only
// when the replaced session was anonymous. Returns an unsubscribe
// function for both hooks.
func (s *Service) RegisterMigration(a *auth.Service) func() {
	unsubOut := a.SubscribeBeforeSignOutAnonymously(func(ident domain.Identity) {
		ctx := context.Background()
		body, err := s.store.Get(ctx, domain.CollectionTimers, ident.UID)
		if err != nil {
			if !errors.Is(err, domain.ErrDocNotFound) {
				observability.Migrations.WithLabelValues("timer", "abandoned").Inc()
				log.Printf("timer: cache for migration: %v", err)
			}
			s.setCached(nil)
			return
		}
		var mem domain.TimerMemory
		if err := json.Unmarshal(body, &mem); err != nil {
			observability.Migrations.WithLabelValues("timer", "abandoned").Inc()
			log.Printf("timer: decode for migration: %v", err)
			s.setCached(nil)
			return
		}
		s.setCached(&mem)
		if err := s.store.Delete(ctx, domain.CollectionTimers, ident.UID); err != nil {
			log.Printf("timer: delete migrated document: %v", err)
		}
	})

	unsubIn := a.SubscribeAfterSignInAnonymously(func(ev auth.SignInEvent) {
		cached := s.takeCached()
		if cached == nil || !ev.PrevIsAnon {
			return
		}
		s.write(context.Background(), ev.Identity.UID, *cached)
		observability.Migrations.WithLabelValues("timer", "migrated").Inc()
	})

	return func() {
		unsubOut()
		unsubIn()
	}
}

func (s *Service) setCached(mem *domain.TimerMemory) {
	s.mu.Lock()
	s.cached = mem
	s.mu.Unlock()
}

// takeCached returns and clears the cache: at most the immediately prior
// anonymous session's documents are kept, never a backlog.
func (s *Service) takeCached() *domain.TimerMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached := s.cached
	s.cached = nil
	return cached
}
