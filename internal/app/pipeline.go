package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// Step names double as WorkflowRun step identifiers, so they must stay
// stable across releases: a resumed run matches persisted outcomes by name.
const (
	stepIdentityRealm  = "identity-realm"
	stepAdminUser      = "identity-admin-user"
	stepDatabaseSchema = "database-schema"
	stepStorageBucket  = "storage-bucket"
	stepInfraStack     = "infra-stack"
	stepDNSRecord      = "dns-record"
	stepReconcile      = "reconcile"
)

// stepOutput is what a forward step hands back for the ledger.
type stepOutput struct {
	externalID string
	metadata   map[string]string
}

// step is one unit of the provisioning pipeline: a forward action, the
// resource type it records, and the compensating action that undoes it.
// Steps with an empty resource type (reconcile) produce no ledger entry
// and are never compensated.
type step struct {
	name     string
	resource domain.ResourceType
	applies  func(t domain.Tenant) bool
	create   func(ctx context.Context, t domain.Tenant) (stepOutput, error)
	destroy  func(ctx context.Context, r domain.Resource) error
}

func always(domain.Tenant) bool { return true }

func siloOnly(t domain.Tenant) bool { return t.Tier == domain.TierSilo }

// pipeline returns the fixed, ordered provisioning pipeline. The order is
// load-bearing: later steps read earlier steps' ledger entries (the admin
// user needs the realm, DNS needs the infra stack endpoint), and the ledger's
// creation order defines the reverse teardown order.
func (o *Orchestrator) pipeline() []step {
	steps := []step{
		{
			name:     stepIdentityRealm,
			resource: domain.ResourceIdentityRealm,
			applies:  always,
			create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
				realmID, err := o.identity.CreateRealm(ctx, t.Key)
				if err != nil {
					return stepOutput{}, fmt.Errorf("creating realm: %w", err)
				}
				return stepOutput{externalID: realmID}, nil
			},
			destroy: func(ctx context.Context, r domain.Resource) error {
				return o.identity.DestroyRealm(ctx, r.ExternalID)
			},
		},
		{
			name:     stepAdminUser,
			resource: domain.ResourceAdminUser,
			applies:  always,
			create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
				realm, err := o.ledger.FindActive(ctx, t.ID, domain.ResourceIdentityRealm)
				if err != nil {
					return stepOutput{}, fmt.Errorf("looking up realm for admin user: %w", err)
				}
				cred, err := o.identity.CreateAdminUser(ctx, realm.ExternalID, t.AdminEmail, t.AdminName)
				if err != nil {
					return stepOutput{}, fmt.Errorf("creating admin user: %w", err)
				}
				// The realm ID rides along in metadata so the compensating
				// DestroyUser call works from the ledger row alone. The
				// temporary password is never persisted.
				return stepOutput{
					externalID: cred.UserID,
					metadata:   map[string]string{"realm_id": realm.ExternalID},
				}, nil
			},
			destroy: func(ctx context.Context, r domain.Resource) error {
				return o.identity.DestroyUser(ctx, r.Metadata["realm_id"], r.ExternalID)
			},
		},
		{
			name:     stepDatabaseSchema,
			resource: domain.ResourceDatabaseSchema,
			applies:  always,
			create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
				schema, err := o.schema.CreateSchema(ctx, t.Key, t.Tier)
				if err != nil {
					return stepOutput{}, fmt.Errorf("creating schema: %w", err)
				}
				return stepOutput{externalID: schema, metadata: map[string]string{"tier": string(t.Tier)}}, nil
			},
			destroy: func(ctx context.Context, r domain.Resource) error {
				return o.schema.DropSchema(ctx, r.ExternalID)
			},
		},
		{
			name:     stepStorageBucket,
			resource: domain.ResourceStorageBucket,
			applies:  siloOnly,
			create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
				bucketID, err := o.storage.CreateBucket(ctx, t.Key)
				if err != nil {
					return stepOutput{}, fmt.Errorf("creating bucket: %w", err)
				}
				return stepOutput{externalID: bucketID}, nil
			},
			destroy: func(ctx context.Context, r domain.Resource) error {
				return o.storage.DeleteBucket(ctx, r.ExternalID)
			},
		},
		{
			name:     stepInfraStack,
			resource: domain.ResourceInfraStack,
			applies:  siloOnly,
			create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
				stackID, err := o.infra.Apply(ctx, domain.StackConfig{TenantKey: t.Key, Tier: t.Tier})
				if err != nil {
					return stepOutput{}, fmt.Errorf("applying infra stack: %w", err)
				}
				return stepOutput{externalID: stackID}, nil
			},
			destroy: func(ctx context.Context, r domain.Resource) error {
				return o.infra.Destroy(ctx, r.ExternalID)
			},
		},
		{
			name:     stepDNSRecord,
			resource: domain.ResourceDNSRecord,
			applies:  siloOnly,
			create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
				target := fmt.Sprintf("%s.tenants.internal", t.Key)
				if stack, err := o.ledger.FindActive(ctx, t.ID, domain.ResourceInfraStack); err == nil {
					if endpoint := stack.Metadata["endpoint"]; endpoint != "" {
						target = endpoint
					}
				}
				recordID, err := o.dns.CreateRecord(ctx, t.Key, target)
				if err != nil {
					return stepOutput{}, fmt.Errorf("creating dns record: %w", err)
				}
				return stepOutput{externalID: recordID, metadata: map[string]string{"target": target}}, nil
			},
			destroy: func(ctx context.Context, r domain.Resource) error {
				return o.dns.DeleteRecord(ctx, r.ExternalID)
			},
		},
	}

	// Final reconciliation: every applicable resource step must have exactly
	// one live ledger entry before the tenant is declared active.
	resourceSteps := make([]step, len(steps))
	copy(resourceSteps, steps)

	steps = append(steps, step{
		name:    stepReconcile,
		applies: always,
		create: func(ctx context.Context, t domain.Tenant) (stepOutput, error) {
			for _, s := range resourceSteps {
				if !s.applies(t) {
					continue
				}
				if _, err := o.ledger.FindActive(ctx, t.ID, s.resource); err != nil {
					return stepOutput{}, fmt.Errorf("reconcile: missing %s entry: %w", s.resource, err)
				}
			}
			return stepOutput{}, nil
		},
	})

	return steps
}

// destroyFor returns the compensating action for a ledger entry's resource
// type. Compensation is ledger-driven, so the lookup is by type rather than
// by step position.
func (o *Orchestrator) destroyFor(typ domain.ResourceType) (func(ctx context.Context, r domain.Resource) error, bool) {
	for _, s := range o.pipeline() {
		if s.resource == typ && s.destroy != nil {
			return s.destroy, true
		}
	}
	return nil, false
}

// stepNameFor maps a resource type back to its pipeline step name.
func stepNameFor(typ domain.ResourceType) string {
	switch typ {
	case domain.ResourceIdentityRealm:
		return stepIdentityRealm
	case domain.ResourceAdminUser:
		return stepAdminUser
	case domain.ResourceDatabaseSchema:
		return stepDatabaseSchema
	case domain.ResourceStorageBucket:
		return stepStorageBucket
	case domain.ResourceInfraStack:
		return stepInfraStack
	case domain.ResourceDNSRecord:
		return stepDNSRecord
	default:
		return string(typ)
	}
}
