// Package stub provides in-process implementations of the external activity
// adapters. They keep state in memory, derive external identifiers
// deterministically from the tenant key (which is what makes repeated Create
// calls idempotent), and treat destroying a missing object as success. Used
// in development mode and in tests; production deployments swap in real
// adapters for the identity provider, database, storage, infra and DNS.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/neomorfeo/provisiq/internal/app"
	"github.com/neomorfeo/provisiq/internal/domain"
)

// Identity implements domain.IdentityAdapter. Realm IDs are derived from
// the tenant key, so a repeated CreateRealm after a lost response returns
// the existing realm instead of creating a duplicate.
type Identity struct {
	creds *app.TokenCache

	mu     sync.Mutex
	realms map[string]bool              // realmID -> exists
	users  map[string]map[string]string // realmID -> userID -> email
}

// Compile-time check: Identity implements domain.IdentityAdapter.
var _ domain.IdentityAdapter = (*Identity)(nil)

// NewIdentity creates the stub identity adapter. The credential cache
// stands in for the short-TTL admin token a real identity provider client
// would hold.
func NewIdentity(creds *app.TokenCache) *Identity {
	return &Identity{
		creds:  creds,
		realms: make(map[string]bool),
		users:  make(map[string]map[string]string),
	}
}

// adminToken fetches (or reuses) the cached admin credential before every
// management call, the same dance a real Keycloak/Zitadel client performs.
func (a *Identity) adminToken(ctx context.Context) (string, error) {
	if a.creds == nil {
		return "", nil
	}
	return a.creds.Get(ctx, func(context.Context) (string, error) {
		return "admin-token-" + uuid.NewString(), nil
	})
}

func (a *Identity) CreateRealm(ctx context.Context, tenantKey string) (string, error) {
	if _, err := a.adminToken(ctx); err != nil {
		return "", fmt.Errorf("acquiring admin token: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	realmID := "tenant-" + tenantKey
	a.realms[realmID] = true
	return realmID, nil
}

func (a *Identity) DestroyRealm(ctx context.Context, realmID string) error {
	if _, err := a.adminToken(ctx); err != nil {
		return fmt.Errorf("acquiring admin token: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Already gone counts as success.
	delete(a.realms, realmID)
	delete(a.users, realmID)
	return nil
}

func (a *Identity) CreateAdminUser(ctx context.Context, realmID, email, name string) (domain.AdminCredential, error) {
	if _, err := a.adminToken(ctx); err != nil {
		return domain.AdminCredential{}, fmt.Errorf("acquiring admin token: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.realms[realmID] {
		return domain.AdminCredential{}, fmt.Errorf("realm %s does not exist", realmID)
	}

	userID := realmID + "-admin"
	if a.users[realmID] == nil {
		a.users[realmID] = make(map[string]string)
	}
	a.users[realmID][userID] = email

	return domain.AdminCredential{
		UserID:       userID,
		TempPassword: uuid.NewString(),
	}, nil
}

func (a *Identity) DestroyUser(ctx context.Context, realmID, userID string) error {
	if _, err := a.adminToken(ctx); err != nil {
		return fmt.Errorf("acquiring admin token: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.users[realmID], userID)
	return nil
}
