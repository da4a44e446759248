package domain

import "context"

// TenantRepository defines the persistence contract for tenants.
type TenantRepository interface {
	Create(ctx context.Context, tenant Tenant) error
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetByKey(ctx context.Context, key string) (Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	Update(ctx context.Context, tenant Tenant) error
	// Delete removes the tenant record. Callers must first verify no
	// active ledger entries remain.
	Delete(ctx context.Context, id string) error
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// ResourceLedger is the durable record of every external resource created
// for a tenant. It is the basis for idempotent resume (FindActive before
// Create) and for compensation order (ListActive ascending, torn down in
// reverse). Only the orchestrator writes ledger rows.
type ResourceLedger interface {
	// Record appends a ledger entry. Returns *DuplicateResourceError if an
	// active entry with the same (tenant, type, external ID) exists.
	Record(ctx context.Context, r Resource) error
	// FindActive returns the live entry of the given type, or ErrResourceNotFound.
	FindActive(ctx context.Context, tenantID string, typ ResourceType) (Resource, error)
	// SoftDelete marks an entry deleted after its external object was destroyed.
	SoftDelete(ctx context.Context, tenantID string, typ ResourceType, externalID string) error
	// ListActive returns all live entries for a tenant, creation time ascending.
	ListActive(ctx context.Context, tenantID string) ([]Resource, error)
	// MarkAttention flags an entry whose teardown permanently failed.
	MarkAttention(ctx context.Context, tenantID string, typ ResourceType, externalID string) error
}

// WorkflowRepository persists workflow run checkpoints.
type WorkflowRepository interface {
	Create(ctx context.Context, run WorkflowRun) error
	Get(ctx context.Context, id string) (WorkflowRun, error)
	// LatestByTenant returns the most recent run for a tenant, or ErrWorkflowNotFound.
	LatestByTenant(ctx context.Context, tenantID string) (WorkflowRun, error)
	// ListNonTerminal returns every run still marked running, for crash resume.
	ListNonTerminal(ctx context.Context) ([]WorkflowRun, error)
	Update(ctx context.Context, run WorkflowRun) error
}

// TransitionValidator checks and applies tenant lifecycle transitions.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}

// AdminCredential is the temporary credential issued for a tenant's first
// administrative user.
type AdminCredential struct {
	UserID       string
	TempPassword string
}

// IdentityAdapter provisions the identity provider's isolation unit (realm /
// organization) and the tenant's first administrative user. Create calls are
// idempotent: realms are named deterministically from the tenant key, so a
// repeated call after a lost response finds the existing object instead of
// duplicating it. Destroy calls treat "already gone" as success.
type IdentityAdapter interface {
	CreateRealm(ctx context.Context, tenantKey string) (realmID string, err error)
	DestroyRealm(ctx context.Context, realmID string) error
	CreateAdminUser(ctx context.Context, realmID, email, name string) (AdminCredential, error)
	DestroyUser(ctx context.Context, realmID, userID string) error
}

// SchemaAdapter provisions the tenant's database schema. Tier decides
// between a shared schema with row-level security and a dedicated schema.
type SchemaAdapter interface {
	CreateSchema(ctx context.Context, tenantKey string, tier Tier) (schemaName string, err error)
	DropSchema(ctx context.Context, schemaName string) error
}

// StorageAdapter provisions the tenant's object storage bucket.
type StorageAdapter interface {
	CreateBucket(ctx context.Context, tenantKey string) (bucketID string, err error)
	DeleteBucket(ctx context.Context, bucketID string) error
}

// StackConfig is the input to an infrastructure stack deployment.
type StackConfig struct {
	TenantKey string
	Tier      Tier
}

// InfraAdapter deploys dedicated infrastructure for silo tenants. Apply is
// long-running (minutes); implementations must honor context cancellation.
type InfraAdapter interface {
	Apply(ctx context.Context, cfg StackConfig) (stackID string, err error)
	Destroy(ctx context.Context, stackID string) error
}

// DNSAdapter manages the tenant's DNS record.
type DNSAdapter interface {
	CreateRecord(ctx context.Context, tenantKey, target string) (recordID string, err error)
	DeleteRecord(ctx context.Context, recordID string) error
}

// NotificationAdapter delivers a templated message. Failures are logged by
// callers and never propagated as workflow errors.
type NotificationAdapter interface {
	Send(ctx context.Context, templateName, recipient string, payload map[string]string) (transactionID string, err error)
}

// Notifier is the orchestrator-facing notification port. The queue adapter
// implements it by enqueuing a durable delivery job; enqueue failures are
// best-effort and never fail a workflow.
type Notifier interface {
	Notify(ctx context.Context, templateName, recipient string, payload map[string]string) error
}
