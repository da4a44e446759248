package stub

import (
	"context"
	"testing"
	"time"

	"github.com/neomorfeo/provisiq/internal/app"
)

func TestIdentity_CreateRealm_Idempotent(t *testing.T) {
	identity := NewIdentity(nil)
	ctx := context.Background()

	first, err := identity.CreateRealm(ctx, "acme")
	if err != nil {
		t.Fatalf("CreateRealm: %v", err)
	}
	second, err := identity.CreateRealm(ctx, "acme")
	if err != nil {
		t.Fatalf("repeated CreateRealm: %v", err)
	}

	if first != second {
		t.Errorf("realm IDs differ: %q vs %q", first, second)
	}
	if first != "tenant-acme" {
		t.Errorf("realm ID = %q, want %q", first, "tenant-acme")
	}
}

func TestIdentity_CreateAdminUser(t *testing.T) {
	identity := NewIdentity(app.NewTokenCache(time.Minute, nil))
	ctx := context.Background()

	realmID, err := identity.CreateRealm(ctx, "acme")
	if err != nil {
		t.Fatalf("CreateRealm: %v", err)
	}

	cred, err := identity.CreateAdminUser(ctx, realmID, "admin@acme.example", "Ada Admin")
	if err != nil {
		t.Fatalf("CreateAdminUser: %v", err)
	}
	if cred.UserID != "tenant-acme-admin" {
		t.Errorf("UserID = %q, want %q", cred.UserID, "tenant-acme-admin")
	}
	if cred.TempPassword == "" {
		t.Error("TempPassword is empty")
	}
}

func TestIdentity_CreateAdminUser_MissingRealm(t *testing.T) {
	identity := NewIdentity(nil)

	_, err := identity.CreateAdminUser(context.Background(), "tenant-ghost", "a@b.example", "A")
	if err == nil {
		t.Fatal("expected error for missing realm, got nil")
	}
}

func TestIdentity_DestroyMissingIsSuccess(t *testing.T) {
	identity := NewIdentity(nil)
	ctx := context.Background()

	if err := identity.DestroyRealm(ctx, "tenant-ghost"); err != nil {
		t.Errorf("DestroyRealm on missing realm: %v", err)
	}
	if err := identity.DestroyUser(ctx, "tenant-ghost", "tenant-ghost-admin"); err != nil {
		t.Errorf("DestroyUser on missing user: %v", err)
	}
}

func TestIdentity_DestroyRealm_RemovesUsers(t *testing.T) {
	identity := NewIdentity(nil)
	ctx := context.Background()

	realmID, _ := identity.CreateRealm(ctx, "acme")
	if _, err := identity.CreateAdminUser(ctx, realmID, "a@b.example", "A"); err != nil {
		t.Fatalf("CreateAdminUser: %v", err)
	}

	if err := identity.DestroyRealm(ctx, realmID); err != nil {
		t.Fatalf("DestroyRealm: %v", err)
	}

	// The realm is gone, so creating a user in it must fail.
	if _, err := identity.CreateAdminUser(ctx, realmID, "a@b.example", "A"); err == nil {
		t.Error("expected error creating user in destroyed realm, got nil")
	}
}
