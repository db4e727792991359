package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/memstore"
)

func TestStartCreatesAnonymousIdentity(t *testing.T) {
	store := memstore.New()
	svc := New(store, TokenAuthenticator{})
	ctx := context.Background()

	if _, ok := svc.Current(); ok {
		t.Fatal("no identity should be current before Start")
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ident, ok := svc.Current()
	if !ok {
		t.Fatal("Start should resolve an identity")
	}
	if !ident.Anonymous {
		t.Error("initial identity should be anonymous")
	}
	if ident.UID == "" {
		t.Error("identity should carry a uid")
	}

	// Sign-in touches the last-active document for the new uid.
	if _, err := store.Get(ctx, domain.CollectionLastActive, ident.UID); err != nil {
		t.Errorf("last-active document missing: %v", err)
	}

	// A second Start is a no-op.
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	again, _ := svc.Current()
	if again.UID != ident.UID {
		t.Error("Start should not replace an existing identity")
	}
}

func TestSignInHookOrdering(t *testing.T) {
	store := memstore.New()
	svc := New(store, TokenAuthenticator{})
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	anon, _ := svc.Current()

	var order []string
	svc.SubscribeBeforeSignOutAnonymously(func(ident domain.Identity) {
		order = append(order, "before:"+ident.UID)
	})
	svc.SubscribeAfterSignInAnonymously(func(ev SignInEvent) {
		order = append(order, "after")
	})
	svc.SubscribeIdentityChanged(func(ident domain.Identity) {
		order = append(order, "changed:"+ident.UID)
	})

	if err := svc.SignIn(ctx, "user:alice"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	// Durable sign-in: before-hook for the anonymous uid, then the identity
	// change. No anonymous after-hook fires.
	want := []string{"before:" + anon.UID, "changed:alice"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}

	cur, _ := svc.Current()
	if cur.UID != "alice" || cur.Anonymous {
		t.Errorf("Current = %+v, want durable alice", cur)
	}

	// The anonymous session's last-active document is gone.
	if _, err := store.Get(ctx, domain.CollectionLastActive, anon.UID); !errors.Is(err, domain.ErrDocNotFound) {
		t.Errorf("anonymous last-active should be deleted, got err = %v", err)
	}
	if _, err := store.Get(ctx, domain.CollectionLastActive, "alice"); err != nil {
		t.Errorf("durable last-active missing: %v", err)
	}
}

func TestSignInFailureFallsBackToAnonymous(t *testing.T) {
	store := memstore.New()
	svc := New(store, TokenAuthenticator{})
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	anon, _ := svc.Current()

	var events []SignInEvent
	svc.SubscribeAfterSignInAnonymously(func(ev SignInEvent) {
		events = append(events, ev)
	})

	err := svc.SignIn(ctx, "not-a-credential")
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("SignIn err = %v, want ErrAuthFailed", err)
	}

	cur, ok := svc.Current()
	if !ok || !cur.Anonymous {
		t.Fatalf("Current = %+v, want fresh anonymous", cur)
	}
	if cur.UID == anon.UID {
		t.Error("fallback should mint a new anonymous uid")
	}

	// The replaced session was anonymous, so the after-hook reports
	// PrevIsAnon=true and migration stays eligible.
	if len(events) != 1 {
		t.Fatalf("got %d after-sign-in events, want 1", len(events))
	}
	if !events[0].PrevIsAnon {
		t.Error("PrevIsAnon = false, want true")
	}
	if events[0].Identity.UID != cur.UID {
		t.Errorf("event uid = %s, want %s", events[0].Identity.UID, cur.UID)
	}
}

func TestSignOutMintsAnonymousWithoutMigration(t *testing.T) {
	store := memstore.New()
	svc := New(store, TokenAuthenticator{})
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.SignIn(ctx, "user:alice"); err != nil {
		t.Fatal(err)
	}

	beforeCalls := 0
	svc.SubscribeBeforeSignOutAnonymously(func(domain.Identity) { beforeCalls++ })
	var events []SignInEvent
	svc.SubscribeAfterSignInAnonymously(func(ev SignInEvent) {
		events = append(events, ev)
	})

	if err := svc.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	cur, _ := svc.Current()
	if !cur.Anonymous {
		t.Errorf("Current = %+v, want anonymous", cur)
	}
	// Leaving a durable identity never runs the anonymous before-hook.
	if beforeCalls != 0 {
		t.Errorf("beforeSignOut fired %d times, want 0", beforeCalls)
	}
	// PrevIsAnon=false blocks any stale cached documents from landing.
	if len(events) != 1 || events[0].PrevIsAnon {
		t.Errorf("events = %+v, want one with PrevIsAnon=false", events)
	}
}

func TestAfterHookRunsBeforeIdentityChanged(t *testing.T) {
	store := memstore.New()
	svc := New(store, TokenAuthenticator{})

	var order []string
	svc.SubscribeIdentityChanged(func(domain.Identity) {
		order = append(order, "changed")
	})
	svc.SubscribeAfterSignInAnonymously(func(SignInEvent) {
		order = append(order, "after")
	})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Registration order must not matter: migration writes always land before
	// identity-change observers hydrate.
	if len(order) != 2 || order[0] != "after" || order[1] != "changed" {
		t.Errorf("order = %v, want [after changed]", order)
	}
}

func TestUnsubscribe(t *testing.T) {
	store := memstore.New()
	svc := New(store, TokenAuthenticator{})

	calls := 0
	unsub := svc.SubscribeIdentityChanged(func(domain.Identity) { calls++ })
	unsub()
	unsub() // second call is harmless

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("unsubscribed hook fired %d times", calls)
	}
}

func TestTokenAuthenticator(t *testing.T) {
	tests := []struct {
		credential string
		wantUID    string
		wantErr    bool
	}{
		{"user:alice", "alice", false},
		{"user:", "", true},
		{"alice", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.credential, func(t *testing.T) {
			uid, err := TokenAuthenticator{}.Authenticate(context.Background(), tt.credential)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrAuthFailed) {
					t.Errorf("err = %v, want ErrAuthFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if uid != tt.wantUID {
				t.Errorf("uid = %q, want %q", uid, tt.wantUID)
			}
		})
	}
}
