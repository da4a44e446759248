package stub

import (
	"context"
	"sync"
	"time"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// Schema implements domain.SchemaAdapter. Schema names are derived from the
// tenant key with the same convention the real DDL adapter would use.
type Schema struct {
	mu      sync.Mutex
	schemas map[string]domain.Tier
}

var _ domain.SchemaAdapter = (*Schema)(nil)

func NewSchema() *Schema {
	return &Schema{schemas: make(map[string]domain.Tier)}
}

func (a *Schema) CreateSchema(_ context.Context, tenantKey string, tier domain.Tier) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := "tenant_" + tenantKey
	a.schemas[name] = tier
	return name, nil
}

func (a *Schema) DropSchema(_ context.Context, schemaName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.schemas, schemaName)
	return nil
}

// Storage implements domain.StorageAdapter with key-derived bucket names.
type Storage struct {
	mu      sync.Mutex
	buckets map[string]bool
}

var _ domain.StorageAdapter = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{buckets: make(map[string]bool)}
}

func (a *Storage) CreateBucket(_ context.Context, tenantKey string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucketID := tenantKey + "-tenant-data"
	a.buckets[bucketID] = true
	return bucketID, nil
}

func (a *Storage) DeleteBucket(_ context.Context, bucketID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.buckets, bucketID)
	return nil
}

// Infra implements domain.InfraAdapter. ApplyDelay simulates the
// long-running nature of a real stack deployment; Apply honors context
// cancellation during the delay, which is what lets an in-flight provision
// be interrupted by a deprovision request.
type Infra struct {
	ApplyDelay time.Duration

	mu     sync.Mutex
	stacks map[string]bool
}

var _ domain.InfraAdapter = (*Infra)(nil)

func NewInfra() *Infra {
	return &Infra{stacks: make(map[string]bool)}
}

func (a *Infra) Apply(ctx context.Context, cfg domain.StackConfig) (string, error) {
	if a.ApplyDelay > 0 {
		select {
		case <-time.After(a.ApplyDelay):
		case <-ctx.Done():
		}
	}
	// With a zero delay a cancelled context must still stop the apply
	// before any state exists to tear down.
	if err := ctx.Err(); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stackID := "stack-" + cfg.TenantKey
	a.stacks[stackID] = true
	return stackID, nil
}

func (a *Infra) Destroy(_ context.Context, stackID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.stacks, stackID)
	return nil
}

// DNS implements domain.DNSAdapter.
type DNS struct {
	mu      sync.Mutex
	records map[string]string // recordID -> target
}

var _ domain.DNSAdapter = (*DNS)(nil)

func NewDNS() *DNS {
	return &DNS{records: make(map[string]string)}
}

func (a *DNS) CreateRecord(_ context.Context, tenantKey, target string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recordID := tenantKey + ".tenants.example.com"
	a.records[recordID] = target
	return recordID, nil
}

func (a *DNS) DeleteRecord(_ context.Context, recordID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.records, recordID)
	return nil
}
