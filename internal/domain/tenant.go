package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusPendingProvision Status = "pending_provision"
	StatusProvisioning     Status = "provisioning"
	StatusActive           Status = "active"
	StatusProvisionFailed  Status = "provision_failed"
	StatusDeprovisioning   Status = "deprovisioning"
	StatusDeprovisioned    Status = "deprovisioned"
	StatusInactive         Status = "inactive"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventProvisionStart      Event = "provision_start"
	EventProvisionComplete   Event = "provision_complete"
	EventProvisionFail       Event = "provision_fail"
	EventDeprovisionStart    Event = "deprovision_start"
	EventDeprovisionComplete Event = "deprovision_complete"
	EventSuspend             Event = "suspend"
	EventReactivate          Event = "reactivate"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the tenant lifecycle.
// This is domain knowledge consumed by the FSM adapter.
//
// A deprovision request supersedes an in-flight provision: "provisioning"
// is a valid source for EventDeprovisionStart, and the orchestrator cancels
// the running workflow before tearing anything down. "provision_failed" can
// be retried (EventProvisionStart) or cleaned up (EventDeprovisionStart).
var Transitions = []Transition{
	{Event: EventProvisionStart, Src: StatusPendingProvision, Dst: StatusProvisioning},
	{Event: EventProvisionStart, Src: StatusProvisionFailed, Dst: StatusProvisioning},
	{Event: EventProvisionComplete, Src: StatusProvisioning, Dst: StatusActive},
	{Event: EventProvisionFail, Src: StatusProvisioning, Dst: StatusProvisionFailed},
	{Event: EventDeprovisionStart, Src: StatusActive, Dst: StatusDeprovisioning},
	{Event: EventDeprovisionStart, Src: StatusProvisioning, Dst: StatusDeprovisioning},
	{Event: EventDeprovisionStart, Src: StatusProvisionFailed, Dst: StatusDeprovisioning},
	{Event: EventDeprovisionStart, Src: StatusInactive, Dst: StatusDeprovisioning},
	{Event: EventDeprovisionComplete, Src: StatusDeprovisioning, Dst: StatusDeprovisioned},
	{Event: EventSuspend, Src: StatusActive, Dst: StatusInactive},
	{Event: EventReactivate, Src: StatusInactive, Dst: StatusActive},
}

// Tier is the billing-derived infrastructure mode for a tenant.
type Tier string

const (
	// TierPooled shares infrastructure across tenants: an RLS-scoped slice
	// of the shared schema, no dedicated bucket, stack or DNS.
	TierPooled Tier = "pooled"
	// TierSilo gives the tenant dedicated infrastructure: its own schema,
	// storage bucket, infra stack and DNS record.
	TierSilo Tier = "silo"
)

// IdentityProvider is the closed set of supported identity backends.
type IdentityProvider string

const (
	IdentityKeycloak IdentityProvider = "keycloak"
	IdentityZitadel  IdentityProvider = "zitadel"
)

// keyPattern constrains tenant keys to names that are safe to embed in
// URLs, SQL identifiers, bucket names and DNS labels.
var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9]{1,31}$`)

// ValidateKey reports whether key can be used to derive external resource
// names. Keys are immutable once any resource has been created for the
// tenant, so this is only checked at creation time.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q (want lowercase alphanumeric, 2-32 chars, letter first)", ErrInvalidKey, key)
	}
	return nil
}

// Tenant is the core domain entity representing an organization using the platform.
type Tenant struct {
	ID               string
	Name             string
	Key              string
	Status           Status
	Tier             Tier
	IdentityProvider IdentityProvider
	AdminEmail       string
	AdminName        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewTenant creates a tenant in the initial "pending_provision" state.
func NewTenant(id, name, key string, tier Tier, idp IdentityProvider, adminEmail, adminName string) Tenant {
	now := time.Now().UTC()
	return Tenant{
		ID:               id,
		Name:             name,
		Key:              key,
		Status:           StatusPendingProvision,
		Tier:             tier,
		IdentityProvider: idp,
		AdminEmail:       adminEmail,
		AdminName:        adminName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
