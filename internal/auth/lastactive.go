package auth

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// touchLastActive stamps last-active/{uid} with the current time. The
// document is read by an external inactivity cleanup job; a failed write only
// delays that job, so it is logged and otherwise ignored.
func (s *Service) touchLastActive(ctx context.Context, uid string) {
	body, err := json.Marshal(domain.LastActive{Timestamp: domain.NowMillis()})
	if err != nil {
		log.Printf("auth: marshal last-active: %v", err)
		return
	}
	if err := s.store.Set(ctx, domain.CollectionLastActive, uid, body); err != nil {
		observability.StoreWriteFailures.WithLabelValues(domain.CollectionLastActive).Inc()
		log.Printf("auth: write last-active for %s: %v", uid, err)
		return
	}
	observability.StoreWrites.WithLabelValues(domain.CollectionLastActive).Inc()
}
