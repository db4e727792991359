package besthours

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/ebbtide-net/ebbtide/internal/auth"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// RegisterMigration subscribes the best-hours document to the identity
// migration bridge. Returns an unsubscribe function for both hooks.
func (a *Aggregator) RegisterMigration(svc *auth.Service) func() {
	unsubOut := svc.SubscribeBeforeSignOutAnonymously(func(ident domain.Identity) {
		ctx := context.Background()
		body, err := a.store.Get(ctx, domain.CollectionBestHours, ident.UID)
		if err != nil {
			if !errors.Is(err, domain.ErrDocNotFound) {
				observability.Migrations.WithLabelValues("best-hours", "abandoned").Inc()
				log.Printf("besthours: cache for migration: %v", err)
			}
			a.setCached(nil)
			return
		}
		var mem domain.BestHoursMemory
		if err := json.Unmarshal(body, &mem); err != nil {
			observability.Migrations.WithLabelValues("best-hours", "abandoned").Inc()
			log.Printf("besthours: decode for migration: %v", err)
			a.setCached(nil)
			return
		}
		a.setCached(&mem)
		if err := a.store.Delete(ctx, domain.CollectionBestHours, ident.UID); err != nil {
			log.Printf("besthours: delete migrated document: %v", err)
		}
	})

	unsubIn := svc.SubscribeAfterSignInAnonymously(func(ev auth.SignInEvent) {
		cached := a.takeCached()
		if cached == nil || !ev.PrevIsAnon {
			return
		}
		a.write(context.Background(), ev.Identity.UID, *cached)
		observability.Migrations.WithLabelValues("best-hours", "migrated").Inc()
	})

	return func() {
		unsubOut()
		unsubIn()
	}
}

func (a *Aggregator) setCached(mem *domain.BestHoursMemory) {
	a.mu.Lock()
	a.cached = mem
	a.mu.Unlock()
}

func (a *Aggregator) takeCached() *domain.BestHoursMemory {
	a.mu.Lock()
	defer a.mu.Unlock()
	cached := a.cached
	a.cached = nil
	return cached
}
