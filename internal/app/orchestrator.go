package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// Notification templates emitted at workflow boundaries. Delivery is
// best-effort: a failed send never changes a workflow's outcome.
const (
	templateProvisioned     = "tenant-provisioned"
	templateProvisionFailed = "tenant-provision-failed"
	templateDeprovisioned   = "tenant-deprovisioned"
)

// RetryPolicy bounds per-step retries. Transient failures are retried with
// exponential backoff and jitter; exhausting MaxAttempts is a permanent
// failure for the step.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used where the caller passes a zero policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     30 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	return p
}

// Deps bundles the ports the orchestrator drives. Everything external to the
// process (identity provider, database DDL, storage, infra, DNS) is reached
// only through these interfaces.
type Deps struct {
	Tenants   domain.TenantRepository
	Ledger    domain.ResourceLedger
	Runs      domain.WorkflowRepository
	Validator domain.TransitionValidator
	Notifier  domain.Notifier
	Identity  domain.IdentityAdapter
	Schema    domain.SchemaAdapter
	Storage   domain.StorageAdapter
	Infra     domain.InfraAdapter
	DNS       domain.DNSAdapter
	Logger    *slog.Logger
}

// Handle identifies one in-flight workflow. Done is closed when the
// workflow goroutine exits, whatever the outcome.
type Handle struct {
	RunID    string
	TenantID string
	Kind     domain.WorkflowKind

	cancel context.CancelFunc
	done   chan struct{}
}

// Done returns a channel closed when the workflow finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status is the caller-facing view of a tenant's workflow progress.
type Status struct {
	State       domain.Status
	CurrentStep string
	LastError   string
}

// Orchestrator executes provisioning and deprovisioning workflows: an
// ordered step pipeline with per-step retries, a durable resource ledger
// for idempotency, and reverse-order compensation on permanent failure.
// At most one workflow runs per tenant at a time.
type Orchestrator struct {
	tenants   domain.TenantRepository
	ledger    domain.ResourceLedger
	runs      domain.WorkflowRepository
	validator domain.TransitionValidator
	notifier  domain.Notifier
	identity  domain.IdentityAdapter
	schema    domain.SchemaAdapter
	storage   domain.StorageAdapter
	infra     domain.InfraAdapter
	dns       domain.DNSAdapter
	logger    *slog.Logger
	retry     RetryPolicy

	mu     sync.Mutex
	active map[string]*Handle
}

// NewOrchestrator creates an orchestrator with the given adapters and retry
// policy. A zero policy gets defaults.
func NewOrchestrator(deps Deps, policy RetryPolicy) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		tenants:   deps.Tenants,
		ledger:    deps.Ledger,
		runs:      deps.Runs,
		validator: deps.Validator,
		notifier:  deps.Notifier,
		identity:  deps.Identity,
		schema:    deps.Schema,
		storage:   deps.Storage,
		infra:     deps.Infra,
		dns:       deps.DNS,
		logger:    logger,
		retry:     policy.withDefaults(),
		active:    make(map[string]*Handle),
	}
}

// StartProvisioning begins (or resumes) the provisioning workflow for a
// tenant. If a provisioning workflow is already running for the tenant, the
// existing handle is returned; this is the single-flight guarantee.
func (o *Orchestrator) StartProvisioning(ctx context.Context, tenantID string) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if h, ok := o.active[tenantID]; ok {
		if h.Kind == domain.WorkflowProvision {
			return h, nil
		}
		return nil, &domain.WorkflowConflictError{TenantID: tenantID, RunID: h.RunID}
	}

	tenant, err := o.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	run, err := o.runs.LatestByTenant(ctx, tenantID)
	resume := false
	switch {
	case err == nil && !run.Status.IsTerminal() && run.Kind == domain.WorkflowProvision:
		// Crash-resume: re-drive the checkpointed run. Succeeded steps are
		// skipped via the run's step results and the ledger.
		resume = true
	case err == nil && !run.Status.IsTerminal():
		return nil, &domain.WorkflowConflictError{TenantID: tenantID, RunID: run.ID}
	default:
		if err != nil && !errors.Is(err, domain.ErrWorkflowNotFound) {
			return nil, err
		}
	}

	// Transition before creating the run: rejecting a start (say, the tenant
	// is already active) must not leave a non-terminal run behind for the
	// resume scan to re-drive.
	if tenant.Status != domain.StatusProvisioning {
		if err := o.transition(ctx, &tenant, domain.EventProvisionStart); err != nil {
			return nil, err
		}
	}

	if !resume {
		run = o.newProvisionRun(tenant)
		if err := o.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("creating workflow run: %w", err)
		}
	}

	return o.launch(tenant, run), nil
}

// StartDeprovisioning begins the teardown workflow for a tenant. An
// in-flight provisioning workflow is cancelled first and its compensation
// is allowed to finish; deprovisioning then clears whatever remains in the
// ledger, so the tenant always lands on "deprovisioned".
func (o *Orchestrator) StartDeprovisioning(ctx context.Context, tenantID string) (*Handle, error) {
	o.mu.Lock()
	if h, ok := o.active[tenantID]; ok {
		if h.Kind == domain.WorkflowDeprovision {
			o.mu.Unlock()
			return h, nil
		}
		h.cancel()
		o.mu.Unlock()
		<-h.done
	} else {
		o.mu.Unlock()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.active[tenantID]; ok {
		return nil, &domain.WorkflowConflictError{TenantID: tenantID, RunID: h.RunID}
	}

	tenant, err := o.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	run, err := o.runs.LatestByTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, domain.ErrWorkflowNotFound) {
		return nil, err
	}
	// Resume an interrupted teardown; anything else gets a fresh run below,
	// after the transition has been accepted.
	resume := err == nil && !run.Status.IsTerminal() && run.Kind == domain.WorkflowDeprovision

	if tenant.Status != domain.StatusDeprovisioning {
		if terr := o.transition(ctx, &tenant, domain.EventDeprovisionStart); terr != nil {
			return nil, terr
		}
	}

	if !resume {
		// A lingering non-terminal provision run (orphaned by a crash) is
		// superseded by this teardown; close it out so the resume scan never
		// re-drives it.
		if err == nil && !run.Status.IsTerminal() {
			run.Status = domain.WorkflowCancelled
			o.saveRun(ctx, &run)
		}
		resources, lerr := o.ledger.ListActive(ctx, tenantID)
		if lerr != nil {
			return nil, fmt.Errorf("listing tenant resources: %w", lerr)
		}
		run = newDeprovisionRun(tenantID, resources)
		if err := o.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("creating workflow run: %w", err)
		}
	}

	return o.launch(tenant, run), nil
}

// GetStatus returns the tenant's lifecycle state together with the latest
// run's current step and last error. This is the single source of truth
// surfaced to callers.
func (o *Orchestrator) GetStatus(ctx context.Context, tenantID string) (Status, error) {
	tenant, err := o.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return Status{}, err
	}

	st := Status{State: tenant.Status}

	run, err := o.runs.LatestByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			return st, nil
		}
		return Status{}, err
	}
	st.CurrentStep = run.CurrentStep
	st.LastError = run.LastError
	return st, nil
}

// Cancel requests cooperative cancellation of the tenant's in-flight
// workflow. A cancelled provision compensates everything created so far.
func (o *Orchestrator) Cancel(tenantID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	h, ok := o.active[tenantID]
	if !ok {
		return fmt.Errorf("no active workflow for tenant %s: %w", tenantID, domain.ErrWorkflowNotFound)
	}
	h.cancel()
	return nil
}

// ResumePending re-drives every non-terminal workflow run. Called once at
// process start so a crash mid-workflow picks up at the first unfinished
// step instead of abandoning the tenant.
func (o *Orchestrator) ResumePending(ctx context.Context) error {
	runs, err := o.runs.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("listing non-terminal runs: %w", err)
	}

	var result *multierror.Error
	for _, run := range runs {
		o.mu.Lock()
		if _, ok := o.active[run.TenantID]; ok {
			o.mu.Unlock()
			continue
		}
		tenant, terr := o.tenants.GetByID(ctx, run.TenantID)
		if terr != nil {
			o.mu.Unlock()
			result = multierror.Append(result, fmt.Errorf("resuming run %s: %w", run.ID, terr))
			continue
		}
		// Only re-drive a run whose tenant is still mid-workflow. An orphaned
		// checkpoint for a tenant that moved on (deprovisioned, active again)
		// would otherwise recreate resources for a terminal-state tenant.
		want := domain.StatusProvisioning
		if run.Kind == domain.WorkflowDeprovision {
			want = domain.StatusDeprovisioning
		}
		if tenant.Status != want {
			o.mu.Unlock()
			o.logger.WarnContext(ctx, "closing orphaned workflow run",
				"tenant_id", tenant.ID, "run_id", run.ID, "kind", run.Kind, "tenant_status", tenant.Status)
			run.Status = domain.WorkflowCancelled
			o.saveRun(ctx, &run)
			continue
		}
		o.logger.InfoContext(ctx, "resuming workflow",
			"tenant_id", tenant.ID, "run_id", run.ID, "kind", run.Kind)
		o.launch(tenant, run)
		o.mu.Unlock()
	}
	return result.ErrorOrNil()
}

// launch registers a handle and starts the workflow goroutine. Callers must
// hold o.mu.
func (o *Orchestrator) launch(tenant domain.Tenant, run domain.WorkflowRun) *Handle {
	// The run context is detached from the caller's: an HTTP request ending
	// must not kill a provisioning workflow. Cancellation happens only via
	// the handle.
	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		RunID:    run.ID,
		TenantID: tenant.ID,
		Kind:     run.Kind,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	o.active[tenant.ID] = h

	go func() {
		defer close(h.done)
		defer cancel()
		defer func() {
			o.mu.Lock()
			delete(o.active, tenant.ID)
			o.mu.Unlock()
		}()

		switch run.Kind {
		case domain.WorkflowProvision:
			o.runProvision(runCtx, tenant, run)
		case domain.WorkflowDeprovision:
			o.runDeprovision(runCtx, tenant, run)
		}
	}()

	return h
}

// runProvision walks the step pipeline in order. Each step checks the
// ledger before creating anything (idempotent resume), retries transient
// failures, and checkpoints the run after every attempt. A permanent
// failure flips the run into the compensation phase.
func (o *Orchestrator) runProvision(ctx context.Context, tenant domain.Tenant, run domain.WorkflowRun) {
	log := o.logger.With("tenant_id", tenant.ID, "tenant_key", tenant.Key, "run_id", run.ID)
	log.InfoContext(ctx, "provisioning started", "tier", tenant.Tier)

	run.Status = domain.WorkflowRunning
	failed := false

	for _, s := range o.pipeline() {
		if i := run.StepIndex(s.name); i >= 0 {
			if st := run.Steps[i].Status; st == domain.StepSucceeded || st == domain.StepSkipped {
				continue
			}
		}

		run.CurrentStep = s.name

		if !s.applies(tenant) {
			run.SetStep(s.name, domain.StepSkipped, 0, "")
			o.saveRun(ctx, &run)
			continue
		}

		// Already in the ledger means a previous attempt succeeded but the
		// checkpoint was lost; do not create a duplicate.
		if s.resource != "" {
			if _, err := o.ledger.FindActive(ctx, tenant.ID, s.resource); err == nil {
				log.InfoContext(ctx, "step already satisfied by ledger", "step", s.name)
				run.SetStep(s.name, domain.StepSucceeded, 0, "")
				o.saveRun(ctx, &run)
				continue
			}
		}

		attempts := 0
		out, err := o.withRetry(ctx, &attempts, func(ctx context.Context) (stepOutput, error) {
			return s.create(ctx, tenant)
		})
		if err == nil && s.resource != "" {
			err = o.recordResource(ctx, tenant, s.resource, out)
		}
		if err != nil {
			run.SetStep(s.name, domain.StepFailed, attempts, err.Error())
			run.LastError = fmt.Sprintf("step %s: %s", s.name, err)
			o.saveRun(ctx, &run)
			log.WarnContext(ctx, "step failed permanently",
				"step", s.name, "attempts", attempts, "error", err)
			failed = true
			break
		}

		run.SetStep(s.name, domain.StepSucceeded, attempts, "")
		o.saveRun(ctx, &run)
		log.InfoContext(ctx, "step succeeded", "step", s.name, "attempts", attempts)
	}

	if !failed {
		run.Status = domain.WorkflowSucceeded
		run.CurrentStep = ""
		o.saveRun(ctx, &run)

		if err := o.transition(ctx, &tenant, domain.EventProvisionComplete); err != nil {
			log.ErrorContext(ctx, "activating tenant", "error", err)
		}
		o.notify(ctx, templateProvisioned, tenant, nil)
		log.InfoContext(ctx, "provisioning complete")
		return
	}

	// Compensation runs on a context detached from the (possibly cancelled)
	// run context: teardown must proceed even when the forward pass was
	// interrupted.
	cancelled := ctx.Err() != nil
	compCtx := context.WithoutCancel(ctx)

	if err := o.compensate(compCtx, tenant, &run); err != nil {
		log.WarnContext(compCtx, "compensation incomplete", "error", err)
	}

	if cancelled {
		run.Status = domain.WorkflowCancelled
	} else {
		run.Status = domain.WorkflowFailed
	}
	run.CurrentStep = ""
	o.saveRun(compCtx, &run)

	if err := o.transition(compCtx, &tenant, domain.EventProvisionFail); err != nil {
		log.ErrorContext(compCtx, "marking tenant provision_failed", "error", err)
	}
	o.notify(compCtx, templateProvisionFailed, tenant, map[string]string{"error": run.LastError})
	log.WarnContext(compCtx, "provisioning failed", "cancelled", cancelled)
}

// runDeprovision tears down every active ledger entry in reverse creation
// order. Per-resource failures are flagged for operators but never block
// the remaining teardown; the tenant always reaches "deprovisioned".
func (o *Orchestrator) runDeprovision(ctx context.Context, tenant domain.Tenant, run domain.WorkflowRun) {
	log := o.logger.With("tenant_id", tenant.ID, "tenant_key", tenant.Key, "run_id", run.ID)
	log.InfoContext(ctx, "deprovisioning started")

	run.Status = domain.WorkflowRunning

	err := o.teardown(ctx, tenant, &run)
	if ctx.Err() != nil {
		// Cancelled mid-teardown: keep the tenant in "deprovisioning" so a
		// later request resumes where this one stopped.
		run.Status = domain.WorkflowCancelled
		run.CurrentStep = ""
		compCtx := context.WithoutCancel(ctx)
		o.saveRun(compCtx, &run)
		log.WarnContext(compCtx, "deprovisioning cancelled")
		return
	}

	if err != nil {
		// Force-close: leftover resources carry the attention flag.
		run.Status = domain.WorkflowFailed
		run.LastError = err.Error()
		log.WarnContext(ctx, "deprovisioning incomplete, flagged for operators", "error", err)
	} else {
		run.Status = domain.WorkflowSucceeded
	}
	run.CurrentStep = ""
	o.saveRun(ctx, &run)

	if terr := o.transition(ctx, &tenant, domain.EventDeprovisionComplete); terr != nil {
		log.ErrorContext(ctx, "marking tenant deprovisioned", "error", terr)
	}
	o.notify(ctx, templateDeprovisioned, tenant, nil)
	log.InfoContext(ctx, "deprovisioning complete", "clean", err == nil)
}

// compensate is the provisioning failure path: destroy what the forward
// pass created, newest first.
func (o *Orchestrator) compensate(ctx context.Context, tenant domain.Tenant, run *domain.WorkflowRun) error {
	o.logger.InfoContext(ctx, "compensating", "tenant_id", tenant.ID, "run_id", run.ID)
	return o.teardown(ctx, tenant, run)
}

// teardown destroys all active ledger entries for the tenant in reverse
// creation order, continuing past individual failures. Entries whose
// teardown permanently fails are flagged for manual intervention and
// reported in the aggregated error.
func (o *Orchestrator) teardown(ctx context.Context, tenant domain.Tenant, run *domain.WorkflowRun) error {
	resources, err := o.ledger.ListActive(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("listing ledger entries: %w", err)
	}

	var result *multierror.Error
	for i := len(resources) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r := resources[i]
		name := stepNameFor(r.Type)
		run.CurrentStep = name
		o.saveRun(ctx, run)

		destroy, ok := o.destroyFor(r.Type)
		if !ok {
			o.flagAttention(ctx, r)
			result = multierror.Append(result, fmt.Errorf("no teardown for resource type %s", r.Type))
			continue
		}

		attempts := 0
		_, derr := o.withRetry(ctx, &attempts, func(ctx context.Context) (stepOutput, error) {
			return stepOutput{}, destroy(ctx, r)
		})
		if derr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.WarnContext(ctx, "teardown failed permanently",
				"tenant_id", tenant.ID, "resource", string(r.Type), "external_id", r.ExternalID,
				"attempts", attempts, "error", derr)
			o.flagAttention(ctx, r)
			result = multierror.Append(result, fmt.Errorf("tearing down %s/%s: %w", r.Type, r.ExternalID, derr))
			continue
		}

		if serr := o.ledger.SoftDelete(ctx, r.TenantID, r.Type, r.ExternalID); serr != nil {
			result = multierror.Append(result, fmt.Errorf("soft-deleting %s/%s: %w", r.Type, r.ExternalID, serr))
			continue
		}
		run.SetStep(name, domain.StepCompensated, attempts, "")
		o.saveRun(ctx, run)
	}

	return result.ErrorOrNil()
}

// withRetry runs op with exponential backoff and jitter. Errors not marked
// transient stop the retry loop immediately.
func (o *Orchestrator) withRetry(ctx context.Context, attempts *int, op func(ctx context.Context) (stepOutput, error)) (stepOutput, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retry.InitialInterval
	bo.MaxInterval = o.retry.MaxInterval

	return backoff.Retry(ctx, func() (stepOutput, error) {
		*attempts++
		out, err := op(ctx)
		if err != nil && !domain.IsTransient(err) {
			return stepOutput{}, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(o.retry.MaxAttempts))
}

// recordResource appends a ledger entry for a completed step. A duplicate
// means the adapter found a pre-existing object for this tenant; the ledger
// already reflects it, so this is not a failure.
func (o *Orchestrator) recordResource(ctx context.Context, tenant domain.Tenant, typ domain.ResourceType, out stepOutput) error {
	err := o.ledger.Record(ctx, domain.Resource{
		TenantID:   tenant.ID,
		Type:       typ,
		ExternalID: out.externalID,
		Metadata:   out.metadata,
		CreatedAt:  time.Now().UTC(),
	})
	var dup *domain.DuplicateResourceError
	if errors.As(err, &dup) {
		o.logger.WarnContext(ctx, "ledger entry already present",
			"tenant_id", tenant.ID, "resource", string(typ), "external_id", out.externalID)
		return nil
	}
	return err
}

func (o *Orchestrator) flagAttention(ctx context.Context, r domain.Resource) {
	if err := o.ledger.MarkAttention(ctx, r.TenantID, r.Type, r.ExternalID); err != nil {
		o.logger.ErrorContext(ctx, "flagging resource for attention",
			"tenant_id", r.TenantID, "resource", string(r.Type), "external_id", r.ExternalID, "error", err)
	}
}

// transition applies a lifecycle event to the tenant and persists the new
// status.
func (o *Orchestrator) transition(ctx context.Context, tenant *domain.Tenant, event domain.Event) error {
	next, err := o.validator.Apply(ctx, tenant.Status, event)
	if err != nil {
		return err
	}
	tenant.Status = next
	if err := o.tenants.Update(ctx, *tenant); err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}
	return nil
}

// notify enqueues a best-effort notification. Failures are logged only:
// workflow outcomes never depend on notification delivery.
func (o *Orchestrator) notify(ctx context.Context, template string, tenant domain.Tenant, extra map[string]string) {
	if o.notifier == nil {
		return
	}
	payload := map[string]string{
		"tenant_name": tenant.Name,
		"tenant_key":  tenant.Key,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := o.notifier.Notify(ctx, template, tenant.AdminEmail, payload); err != nil {
		o.logger.WarnContext(ctx, "notification enqueue failed",
			"template", template, "tenant_id", tenant.ID, "error", err)
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, run *domain.WorkflowRun) {
	run.UpdatedAt = time.Now().UTC()
	if err := o.runs.Update(ctx, *run); err != nil {
		o.logger.ErrorContext(ctx, "persisting workflow run", "run_id", run.ID, "error", err)
	}
}

func (o *Orchestrator) newProvisionRun(tenant domain.Tenant) domain.WorkflowRun {
	steps := make([]domain.StepResult, 0, 8)
	for _, s := range o.pipeline() {
		steps = append(steps, domain.StepResult{Name: s.name, Status: domain.StepPending})
	}
	now := time.Now().UTC()
	return domain.WorkflowRun{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		Kind:      domain.WorkflowProvision,
		Status:    domain.WorkflowRunning,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newDeprovisionRun(tenantID string, resources []domain.Resource) domain.WorkflowRun {
	steps := make([]domain.StepResult, 0, len(resources))
	for i := len(resources) - 1; i >= 0; i-- {
		steps = append(steps, domain.StepResult{Name: stepNameFor(resources[i].Type), Status: domain.StepPending})
	}
	now := time.Now().UTC()
	return domain.WorkflowRun{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      domain.WorkflowDeprovision,
		Status:    domain.WorkflowRunning,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
