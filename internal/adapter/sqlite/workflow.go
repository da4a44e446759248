package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// WorkflowRepository implements domain.WorkflowRepository using SQLite.
// Step outcomes are stored as a JSON array in the run row: the run is
// always read and written as a unit, so normalizing steps into their own
// table would buy nothing.
type WorkflowRepository struct {
	db *sql.DB
}

// Compile-time check: WorkflowRepository implements domain.WorkflowRepository.
var _ domain.WorkflowRepository = (*WorkflowRepository)(nil)

func (w *WorkflowRepository) Create(ctx context.Context, run domain.WorkflowRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encoding run steps: %w", err)
	}

	_, err = w.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, tenant_id, kind, status, steps, current_step, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenantID, string(run.Kind), string(run.Status), string(steps),
		run.CurrentStep, run.LastError,
		run.CreatedAt.Format(timeFormat),
		run.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting workflow run: %w", err)
	}
	return nil
}

func (w *WorkflowRepository) Get(ctx context.Context, id string) (domain.WorkflowRun, error) {
	return w.scanRun(w.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, kind, status, steps, current_step, last_error, created_at, updated_at
		 FROM workflow_runs WHERE id = ?`, id,
	))
}

func (w *WorkflowRepository) LatestByTenant(ctx context.Context, tenantID string) (domain.WorkflowRun, error) {
	return w.scanRun(w.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, kind, status, steps, current_step, last_error, created_at, updated_at
		 FROM workflow_runs
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT 1`, tenantID,
	))
}

func (w *WorkflowRepository) ListNonTerminal(ctx context.Context) ([]domain.WorkflowRun, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, tenant_id, kind, status, steps, current_step, last_error, created_at, updated_at
		 FROM workflow_runs
		 WHERE status = ?
		 ORDER BY created_at`, string(domain.WorkflowRunning),
	)
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.WorkflowRun
	for rows.Next() {
		run, err := w.scanRunFromRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (w *WorkflowRepository) Update(ctx context.Context, run domain.WorkflowRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encoding run steps: %w", err)
	}

	result, err := w.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, steps = ?, current_step = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		string(run.Status), string(steps), run.CurrentStep, run.LastError,
		time.Now().UTC().Format(timeFormat), run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating workflow run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrWorkflowNotFound
	}

	return nil
}

func (w *WorkflowRepository) scanRun(row *sql.Row) (domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var kind, status, steps, createdAt, updatedAt string

	err := row.Scan(&run.ID, &run.TenantID, &kind, &status, &steps, &run.CurrentStep, &run.LastError, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.WorkflowRun{}, domain.ErrWorkflowNotFound
		}
		return domain.WorkflowRun{}, fmt.Errorf("scanning workflow run: %w", err)
	}

	return decodeRun(run, kind, status, steps, createdAt, updatedAt)
}

func (w *WorkflowRepository) scanRunFromRows(rows *sql.Rows) (domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var kind, status, steps, createdAt, updatedAt string

	err := rows.Scan(&run.ID, &run.TenantID, &kind, &status, &steps, &run.CurrentStep, &run.LastError, &createdAt, &updatedAt)
	if err != nil {
		return domain.WorkflowRun{}, fmt.Errorf("scanning workflow run row: %w", err)
	}

	return decodeRun(run, kind, status, steps, createdAt, updatedAt)
}

func decodeRun(run domain.WorkflowRun, kind, status, steps, createdAt, updatedAt string) (domain.WorkflowRun, error) {
	run.Kind = domain.WorkflowKind(kind)
	run.Status = domain.WorkflowStatus(status)
	run.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	run.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return domain.WorkflowRun{}, fmt.Errorf("decoding run steps: %w", err)
	}
	return run, nil
}
