package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/provisiq/internal/domain"
)

func TestNewTenant(t *testing.T) {
	before := time.Now().UTC()
	tenant := domain.NewTenant("id-1", "Acme Corp", "acme01", domain.TierPooled, domain.IdentityKeycloak, "admin@acme.example", "Ada Admin")
	after := time.Now().UTC()

	if tenant.ID != "id-1" {
		t.Errorf("ID = %q, want %q", tenant.ID, "id-1")
	}
	if tenant.Name != "Acme Corp" {
		t.Errorf("Name = %q, want %q", tenant.Name, "Acme Corp")
	}
	if tenant.Key != "acme01" {
		t.Errorf("Key = %q, want %q", tenant.Key, "acme01")
	}
	if tenant.Status != domain.StatusPendingProvision {
		t.Errorf("Status = %q, want %q", tenant.Status, domain.StatusPendingProvision)
	}
	if tenant.Tier != domain.TierPooled {
		t.Errorf("Tier = %q, want %q", tenant.Tier, domain.TierPooled)
	}
	if tenant.IdentityProvider != domain.IdentityKeycloak {
		t.Errorf("IdentityProvider = %q, want %q", tenant.IdentityProvider, domain.IdentityKeycloak)
	}
	if tenant.CreatedAt.Before(before) || tenant.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want between %v and %v", tenant.CreatedAt, before, after)
	}
	if tenant.UpdatedAt != tenant.CreatedAt {
		t.Errorf("UpdatedAt should equal CreatedAt on new tenant")
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"acme01", "ab", "tenant9", "a1b2c3"}
	for _, key := range valid {
		if err := domain.ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{"", "a", "Acme", "acme-01", "acme_01", "1acme", "toolongtoolongtoolongtoolongtoolong"}
	for _, key := range invalid {
		err := domain.ValidateKey(key)
		if !errors.Is(err, domain.ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestTransitions_AllEventsHaveEntries(t *testing.T) {
	events := []domain.Event{
		domain.EventProvisionStart,
		domain.EventProvisionComplete,
		domain.EventProvisionFail,
		domain.EventDeprovisionStart,
		domain.EventDeprovisionComplete,
		domain.EventSuspend,
		domain.EventReactivate,
	}

	for _, event := range events {
		found := false
		for _, tr := range domain.Transitions {
			if tr.Event == event {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("event %q has no transition defined", event)
		}
	}
}

func TestTransitions_ValidPaths(t *testing.T) {
	cases := []struct {
		event domain.Event
		src   domain.Status
		dst   domain.Status
	}{
		// Happy path: pending → provisioning → active → deprovisioning → deprovisioned.
		{domain.EventProvisionStart, domain.StatusPendingProvision, domain.StatusProvisioning},
		{domain.EventProvisionComplete, domain.StatusProvisioning, domain.StatusActive},
		{domain.EventDeprovisionStart, domain.StatusActive, domain.StatusDeprovisioning},
		{domain.EventDeprovisionComplete, domain.StatusDeprovisioning, domain.StatusDeprovisioned},
		// Failure and retry.
		{domain.EventProvisionFail, domain.StatusProvisioning, domain.StatusProvisionFailed},
		{domain.EventProvisionStart, domain.StatusProvisionFailed, domain.StatusProvisioning},
		// Deprovision supersedes an in-flight provision.
		{domain.EventDeprovisionStart, domain.StatusProvisioning, domain.StatusDeprovisioning},
		{domain.EventDeprovisionStart, domain.StatusProvisionFailed, domain.StatusDeprovisioning},
		// Admin suspension toggle.
		{domain.EventSuspend, domain.StatusActive, domain.StatusInactive},
		{domain.EventReactivate, domain.StatusInactive, domain.StatusActive},
		{domain.EventDeprovisionStart, domain.StatusInactive, domain.StatusDeprovisioning},
	}

	for _, tc := range cases {
		found := false
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src && tr.Dst == tc.dst {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing transition: %q from %q → %q", tc.event, tc.src, tc.dst)
		}
	}
}

func TestTransitions_InvalidPaths(t *testing.T) {
	// These transitions must NOT exist.
	invalid := []struct {
		event domain.Event
		src   domain.Status
	}{
		{domain.EventSuspend, domain.StatusPendingProvision},
		{domain.EventSuspend, domain.StatusProvisioning},
		{domain.EventReactivate, domain.StatusActive},
		{domain.EventProvisionComplete, domain.StatusActive},
		{domain.EventProvisionStart, domain.StatusActive},
		{domain.EventDeprovisionStart, domain.StatusDeprovisioned},
		{domain.EventDeprovisionComplete, domain.StatusActive},
	}

	for _, tc := range invalid {
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src {
				t.Errorf("unexpected transition: %q from %q should not exist", tc.event, tc.src)
			}
		}
	}
}
