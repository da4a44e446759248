package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/neomorfeo/provisiq/internal/domain"
)

func TestKeyConflictError_Error(t *testing.T) {
	err := &domain.KeyConflictError{Key: "acme01"}
	want := `key "acme01" is already in use`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransitionError_Error(t *testing.T) {
	err := &domain.TransitionError{
		Event:   domain.EventSuspend,
		Current: domain.StatusProvisioning,
	}
	want := `event "suspend" is not valid from state "provisioning"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDuplicateResourceError_Error(t *testing.T) {
	err := &domain.DuplicateResourceError{
		TenantID:   "t-1",
		Type:       domain.ResourceIdentityRealm,
		ExternalID: "tenant-acme01",
	}
	want := `resource identity-realm/tenant-acme01 already recorded for tenant t-1`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestMarkTransient(t *testing.T) {
	base := errors.New("connection reset")

	err := domain.MarkTransient(base)
	if !domain.IsTransient(err) {
		t.Error("MarkTransient result should be transient")
	}
	if !errors.Is(err, base) {
		t.Error("transient wrapper should unwrap to the original error")
	}

	// The flag survives further wrapping.
	wrapped := fmt.Errorf("calling identity provider: %w", err)
	if !domain.IsTransient(wrapped) {
		t.Error("transient flag should survive fmt.Errorf wrapping")
	}
}

func TestMarkTransient_Nil(t *testing.T) {
	if domain.MarkTransient(nil) != nil {
		t.Error("MarkTransient(nil) should be nil")
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if domain.IsTransient(errors.New("validation failed")) {
		t.Error("plain errors should not be transient")
	}
}
