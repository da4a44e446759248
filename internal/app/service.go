package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// TenantService handles tenant records and the admin-facing lifecycle
// actions that are not resource-affecting. Resource-affecting work
// (provisioning, deprovisioning) goes through the Orchestrator.
type TenantService struct {
	repo      domain.TenantRepository
	ledger    domain.ResourceLedger
	validator domain.TransitionValidator
}

// NewTenantService creates a service with the given adapters.
func NewTenantService(repo domain.TenantRepository, ledger domain.ResourceLedger, validator domain.TransitionValidator) *TenantService {
	return &TenantService{
		repo:      repo,
		ledger:    ledger,
		validator: validator,
	}
}

// Create persists a new tenant in the pending_provision state. The tenant
// key is validated here because every external resource name is derived
// from it and it becomes immutable as soon as the first resource exists.
func (s *TenantService) Create(ctx context.Context, name, key string, tier domain.Tier, idp domain.IdentityProvider, adminEmail, adminName string) (domain.Tenant, error) {
	if err := domain.ValidateKey(key); err != nil {
		return domain.Tenant{}, err
	}

	// Check key uniqueness before creating.
	if _, err := s.repo.GetByKey(ctx, key); err == nil {
		return domain.Tenant{}, &domain.KeyConflictError{Key: key}
	}

	id, err := newTenantID()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("generating tenant id: %w", err)
	}

	tenant := domain.NewTenant(id, name, key, tier, idp, adminEmail, adminName)

	if err := s.repo.Create(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("creating tenant: %w", err)
	}

	return tenant, nil
}

// GetByID returns a tenant by its unique identifier.
func (s *TenantService) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tenants matching the given filter.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}

// Resources returns the tenant's active ledger entries, creation order
// ascending, including any flagged for manual intervention.
func (s *TenantService) Resources(ctx context.Context, tenantID string) ([]domain.Resource, error) {
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.ledger.ListActive(ctx, tenantID)
}

// Suspend is the administrative toggle to inactive. It does not touch any
// external resource.
func (s *TenantService) Suspend(ctx context.Context, id string) (domain.Tenant, error) {
	return s.applyEvent(ctx, id, domain.EventSuspend)
}

// Reactivate returns a suspended tenant to active.
func (s *TenantService) Reactivate(ctx context.Context, id string) (domain.Tenant, error) {
	return s.applyEvent(ctx, id, domain.EventReactivate)
}

// Delete hard-deletes a tenant record. Refused while the ledger still holds
// active entries: deprovisioning must complete (or be force-closed) first.
func (s *TenantService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	resources, err := s.ledger.ListActive(ctx, id)
	if err != nil {
		return fmt.Errorf("checking tenant resources: %w", err)
	}
	if len(resources) > 0 {
		return fmt.Errorf("%w: %d active resources", domain.ErrTenantHasResource, len(resources))
	}

	return s.repo.Delete(ctx, id)
}

func (s *TenantService) applyEvent(ctx context.Context, id string, event domain.Event) (domain.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	newStatus, err := s.validator.Apply(ctx, tenant.Status, event)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant.Status = newStatus

	if err := s.repo.Update(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}

	return tenant, nil
}
