package domain

import "time"

// WorkflowKind distinguishes forward provisioning runs from teardown runs.
type WorkflowKind string

const (
	WorkflowProvision   WorkflowKind = "provision"
	WorkflowDeprovision WorkflowKind = "deprovision"
)

// WorkflowStatus is the overall state of a run.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowSucceeded WorkflowStatus = "succeeded"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer make progress.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowSucceeded || s == WorkflowFailed || s == WorkflowCancelled
}

// StepStatus is the outcome of a single pipeline step within a run.
type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepSkipped     StepStatus = "skipped"
	StepSucceeded   StepStatus = "succeeded"
	StepFailed      StepStatus = "failed"
	StepCompensated StepStatus = "compensated"
)

// StepResult records the outcome of one step attempt sequence.
type StepResult struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
}

// WorkflowRun is the durable checkpoint of one orchestration for a tenant.
// It is persisted after every step attempt so a restarted process can resume
// from the first non-succeeded step instead of starting over, and it is
// retained after completion for audit.
type WorkflowRun struct {
	ID          string
	TenantID    string
	Kind        WorkflowKind
	Status      WorkflowStatus
	Steps       []StepResult
	CurrentStep string
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StepIndex returns the index of the named step, or -1.
func (r *WorkflowRun) StepIndex(name string) int {
	for i, s := range r.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// SetStep updates the named step's result in place.
func (r *WorkflowRun) SetStep(name string, status StepStatus, attempts int, lastErr string) {
	if i := r.StepIndex(name); i >= 0 {
		r.Steps[i].Status = status
		r.Steps[i].Attempts = attempts
		r.Steps[i].LastError = lastErr
	}
}
