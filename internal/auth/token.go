package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebbtide-net/ebbtide/internal/domain"
)

// TokenAuthenticator is the default Authenticator. It accepts credentials of
// the form "user:<id>" and maps them to the durable uid <id>. Real identity
// providers plug in behind the same interface; the rest of the system only
// ever sees anonymous-or-durable.
type TokenAuthenticator struct{}

// Authenticate resolves a "user:<id>" credential.
func (TokenAuthenticator) Authenticate(_ context.Context, credential string) (string, error) {
	uid, ok := strings.CutPrefix(credential, "user:")
	if !ok || uid == "" {
		return "", fmt.Errorf("credential %q: %w", credential, domain.ErrAuthFailed)
	}
	return uid, nil
}

var _ Authenticator = TokenAuthenticator{}
