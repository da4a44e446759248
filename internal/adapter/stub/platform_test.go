package stub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/provisiq/internal/domain"
)

func TestSchema_NamesDerivedFromKey(t *testing.T) {
	schema := NewSchema()

	name, err := schema.CreateSchema(context.Background(), "acme", domain.TierPooled)
	if err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if name != "tenant_acme" {
		t.Errorf("schema name = %q, want %q", name, "tenant_acme")
	}

	if err := schema.DropSchema(context.Background(), name); err != nil {
		t.Errorf("DropSchema: %v", err)
	}
	// Dropping again is still success.
	if err := schema.DropSchema(context.Background(), name); err != nil {
		t.Errorf("repeated DropSchema: %v", err)
	}
}

func TestStorage_BucketLifecycle(t *testing.T) {
	storage := NewStorage()

	bucketID, err := storage.CreateBucket(context.Background(), "acme")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if bucketID != "acme-tenant-data" {
		t.Errorf("bucket ID = %q, want %q", bucketID, "acme-tenant-data")
	}

	if err := storage.DeleteBucket(context.Background(), bucketID); err != nil {
		t.Errorf("DeleteBucket: %v", err)
	}
}

func TestInfra_Apply(t *testing.T) {
	infra := NewInfra()

	stackID, err := infra.Apply(context.Background(), domain.StackConfig{TenantKey: "acme", Tier: domain.TierSilo})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stackID != "stack-acme" {
		t.Errorf("stack ID = %q, want %q", stackID, "stack-acme")
	}
}

func TestInfra_Apply_HonorsCancellation(t *testing.T) {
	infra := NewInfra()
	infra.ApplyDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := infra.Apply(ctx, domain.StackConfig{TenantKey: "slow", Tier: domain.TierSilo})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Apply took %v to observe cancellation", elapsed)
	}
}

func TestInfra_Apply_CancelledBeforeStart(t *testing.T) {
	infra := NewInfra()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No delay configured: a cancelled context must still stop the apply
	// before any stack exists.
	_, err := infra.Apply(ctx, domain.StackConfig{TenantKey: "dead", Tier: domain.TierSilo})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply error = %v, want context.Canceled", err)
	}
	infra.mu.Lock()
	created := infra.stacks["stack-dead"]
	infra.mu.Unlock()
	if created {
		t.Error("cancelled Apply still created the stack")
	}
}

func TestDNS_RecordLifecycle(t *testing.T) {
	dns := NewDNS()

	recordID, err := dns.CreateRecord(context.Background(), "acme", "stack-acme.internal")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if recordID != "acme.tenants.example.com" {
		t.Errorf("record ID = %q, want %q", recordID, "acme.tenants.example.com")
	}

	if err := dns.DeleteRecord(context.Background(), recordID); err != nil {
		t.Errorf("DeleteRecord: %v", err)
	}
}
