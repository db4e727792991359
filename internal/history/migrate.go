package history

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/ebbtide-net/ebbtide/internal/auth"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// RegisterMigration subscribes the history document to the identity
// migration bridge. Returns an unsubscribe function for both hooks.
func (l *Ledger) RegisterMigration(a *auth.Service) func() {
	unsubOut := a.SubscribeBeforeSignOutAnonymously(func(ident domain.Identity) {
		ctx := context.Background()
		body, err := l.store.Get(ctx, domain.CollectionHistory, ident.UID)
		if err != nil {
			if !errors.Is(err, domain.ErrDocNotFound) {
				observability.Migrations.WithLabelValues("history", "abandoned").Inc()
				log.Printf("history: cache for migration: %v", err)
			}
			l.setCached(nil)
			return
		}
		var mem domain.HistoryMemory
		if err := json.Unmarshal(body, &mem); err != nil {
			observability.Migrations.WithLabelValues("history", "abandoned").Inc()
			log.Printf("history: decode for migration: %v", err)
			l.setCached(nil)
			return
		}
		l.setCached(mem)
		if err := l.store.Delete(ctx, domain.CollectionHistory, ident.UID); err != nil {
			log.Printf("history: delete migrated document: %v", err)
		}
	})

	unsubIn := a.SubscribeAfterSignInAnonymously(func(ev auth.SignInEvent) {
		cached := l.takeCached()
		if cached == nil || !ev.PrevIsAnon {
			return
		}
		l.write(context.Background(), ev.Identity.UID, cached)
		observability.Migrations.WithLabelValues("history", "migrated").Inc()
	})

	return func() {
		unsubOut()
		unsubIn()
	}
}

func (l *Ledger) setCached(mem domain.HistoryMemory) {
	l.mu.Lock()
	l.cached = mem
	l.mu.Unlock()
}

func (l *Ledger) takeCached() domain.HistoryMemory {
	l.mu.Lock()
	defer l.mu.Unlock()
	cached := l.cached
	l.cached = nil
	return cached
}
