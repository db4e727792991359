// Package auth owns the current identity and the migration bridge that lets
// the per-user documents survive the anonymous→durable transition.
//
// The bridge is deliberately free of domain knowledge: the timer, history,
// and best-hours services each register independently against the two hooks
// and move their own documents. Ordering is the load-bearing part: before
// an anonymous credential is discarded, every BeforeSignOutAnonymously
// subscriber runs to completion; after any anonymous sign-in, every
// AfterSignInAnonymously subscriber runs before identity-change observers
// re-attach their snapshot subscriptions. That sequencing is what prevents a
// lost-update race between the migration write and the initial hydrate.
package auth

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/observability"
)

// SignInEvent is delivered after any anonymous sign-in completes, including
// the fallback after a failed durable sign-in. PrevIsAnon reports whether the
// session being replaced was itself anonymous; migrations are only valid when
// it was.
type SignInEvent struct {
	Identity   domain.Identity
	PrevIsAnon bool
}

// Authenticator resolves a durable credential to a stable user id.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (uid string, err error)
}

// Service tracks the current identity and publishes sign-in/out boundaries.
type Service struct {
	mu      sync.Mutex
	current *domain.Identity

	store domain.Store
	authn Authenticator

	beforeSignOut   *subscribers[domain.Identity]
	afterSignIn     *subscribers[SignInEvent]
	identityChanged *subscribers[domain.Identity]
}

// New creates an identity service backed by store. No identity is current
// until Start or a sign-in method runs.
func New(store domain.Store, authn Authenticator) *Service {
	return &Service{
		store:           store,
		authn:           authn,
		beforeSignOut:   newSubscribers[domain.Identity](),
		afterSignIn:     newSubscribers[SignInEvent](),
		identityChanged: newSubscribers[domain.Identity](),
	}
}

// Current returns the current identity, if one is resolved.
func (s *Service) Current() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.Identity{}, false
	}
	return *s.current, true
}

// Start resolves the initial identity: if none exists, a fresh anonymous one
// is created, exactly as an app launch with no stored credential behaves.
func (s *Service) Start(ctx context.Context) error {
	if _, ok := s.Current(); ok {
		return nil
	}
	_, err := s.signInAnonymous(ctx, true)
	return err
}

// SignIn upgrades to a durable identity. The anonymous session being replaced
// is signed out first (running the migration bridge's before-hook), its
// credential is discarded, and the durable credential is resolved. On
// authentication failure the service falls back to a fresh anonymous identity
// so the timer stays usable, and ErrAuthFailed is returned.
func (s *Service) SignIn(ctx context.Context, credential string) error {
	s.signOutAnonymous(ctx)
	uid, err := s.authn.Authenticate(ctx, credential)
	if err != nil {
		log.Printf("auth: durable sign-in failed, falling back to anonymous: %v", err)
		// The replaced session was anonymous, so its cached documents are
		// still eligible to land on the fallback identity.
		if _, aerr := s.signInAnonymous(ctx, true); aerr != nil {
			return aerr
		}
		return domain.ErrAuthFailed
	}
	ident := domain.Identity{UID: uid}
	s.setCurrent(&ident)
	s.touchLastActive(ctx, ident.UID)
	observability.SignIns.WithLabelValues("durable").Inc()
	s.identityChanged.notify(ident)
	return nil
}

// SignOut leaves the durable identity and creates a new anonymous one. The
// event carries PrevIsAnon=false so a durable user's leftover cache can never
// overwrite another identity's documents.
func (s *Service) SignOut(ctx context.Context) error {
	s.setCurrent(nil)
	_, err := s.signInAnonymous(ctx, false)
	return err
}

// SubscribeBeforeSignOutAnonymously registers fn to run synchronously before
// an anonymous credential is irreversibly discarded. Subscribers should read
// and cache their documents for the outgoing uid, then delete the remote
// copies.
func (s *Service) SubscribeBeforeSignOutAnonymously(fn func(domain.Identity)) func() {
	return s.beforeSignOut.subscribe(fn)
}

// SubscribeAfterSignInAnonymously registers fn to run after any anonymous
// sign-in completes, before snapshot subscriptions for the new identity
// re-attach.
func (s *Service) SubscribeAfterSignInAnonymously(fn func(SignInEvent)) func() {
	return s.afterSignIn.subscribe(fn)
}

// SubscribeIdentityChanged registers fn to run whenever the current identity
// changes. This always fires after the migration hooks for the same
// transition.
func (s *Service) SubscribeIdentityChanged(fn func(domain.Identity)) func() {
	return s.identityChanged.subscribe(fn)
}

func (s *Service) setCurrent(ident *domain.Identity) {
	s.mu.Lock()
	s.current = ident
	s.mu.Unlock()
}

func (s *Service) signInAnonymous(ctx context.Context, prevIsAnon bool) (domain.Identity, error) {
	ident := domain.Identity{UID: uuid.NewString(), Anonymous: true}
	s.setCurrent(&ident)
	s.touchLastActive(ctx, ident.UID)
	observability.SignIns.WithLabelValues("anonymous").Inc()
	// Migration writes happen here, while nothing is subscribed to the new
	// identity's documents yet.
	s.afterSignIn.notify(SignInEvent{Identity: ident, PrevIsAnon: prevIsAnon})
	s.identityChanged.notify(ident)
	return ident, nil
}

// signOutAnonymous notifies the before-hook and discards the anonymous
// credential. After this returns the old uid is unrecoverable, which is why
// subscribers must cache their documents inside the hook.
func (s *Service) signOutAnonymous(ctx context.Context) {
	cur, ok := s.Current()
	if !ok || !cur.Anonymous {
		return
	}
	s.beforeSignOut.notify(cur)
	if err := s.store.Delete(ctx, domain.CollectionLastActive, cur.UID); err != nil {
		log.Printf("auth: delete last-active for %s: %v", cur.UID, err)
	}
	s.setCurrent(nil)
}
