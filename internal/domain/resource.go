package domain

import "time"

// ResourceType identifies the kind of external object a ledger entry tracks.
type ResourceType string

const (
	ResourceIdentityRealm  ResourceType = "identity-realm"
	ResourceIdentityClient ResourceType = "identity-client"
	ResourceAdminUser      ResourceType = "identity-admin-user"
	ResourceDatabaseSchema ResourceType = "database-schema"
	ResourceStorageBucket  ResourceType = "storage-bucket"
	ResourceInfraStack     ResourceType = "infra-stack"
	ResourceDNSRecord      ResourceType = "dns-record"
)

// Resource is a ledger entry: the durable record of one external object
// created for a tenant. A row exists if and only if the external object is
// believed to exist; compensation and deprovisioning soft-delete rows as
// they destroy the objects behind them.
type Resource struct {
	TenantID   string
	Type       ResourceType
	ExternalID string
	Metadata   map[string]string
	// NeedsAttention marks a resource whose teardown permanently failed
	// and requires manual operator intervention.
	NeedsAttention bool
	CreatedAt      time.Time
	DeletedAt      *time.Time
}
