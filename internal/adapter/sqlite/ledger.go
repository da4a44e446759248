package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// ResourceLedger implements domain.ResourceLedger using SQLite. Every write
// is a single-row statement: each ledger entry maps to exactly one external
// system call, so no cross-resource transaction is needed.
type ResourceLedger struct {
	db *sql.DB
}

// Compile-time check: ResourceLedger implements domain.ResourceLedger.
var _ domain.ResourceLedger = (*ResourceLedger)(nil)

func (l *ResourceLedger) Record(ctx context.Context, r domain.Resource) error {
	meta, err := json.Marshal(orEmpty(r.Metadata))
	if err != nil {
		return fmt.Errorf("encoding resource metadata: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO resources (tenant_id, type, external_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.TenantID, string(r.Type), r.ExternalID, string(meta),
		createdAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.DuplicateResourceError{
				TenantID:   r.TenantID,
				Type:       r.Type,
				ExternalID: r.ExternalID,
			}
		}
		return fmt.Errorf("inserting resource: %w", err)
	}
	return nil
}

func (l *ResourceLedger) FindActive(ctx context.Context, tenantID string, typ domain.ResourceType) (domain.Resource, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT tenant_id, type, external_id, metadata, needs_attention, created_at, deleted_at
		 FROM resources
		 WHERE tenant_id = ? AND type = ? AND deleted_at IS NULL
		 ORDER BY created_at, id
		 LIMIT 1`,
		tenantID, string(typ),
	)

	r, err := scanResource(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Resource{}, domain.ErrResourceNotFound
		}
		return domain.Resource{}, fmt.Errorf("scanning resource: %w", err)
	}
	return r, nil
}

func (l *ResourceLedger) SoftDelete(ctx context.Context, tenantID string, typ domain.ResourceType, externalID string) error {
	result, err := l.db.ExecContext(ctx,
		`UPDATE resources SET deleted_at = ?
		 WHERE tenant_id = ? AND type = ? AND external_id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeFormat), tenantID, string(typ), externalID,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting resource: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

// ListActive returns live entries ordered by creation time ascending; the
// reverse of this ordering is the compensation order.
func (l *ResourceLedger) ListActive(ctx context.Context, tenantID string) ([]domain.Resource, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tenant_id, type, external_id, metadata, needs_attention, created_at, deleted_at
		 FROM resources
		 WHERE tenant_id = ? AND deleted_at IS NULL
		 ORDER BY created_at, id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	defer rows.Close()

	var resources []domain.Resource
	for rows.Next() {
		r, err := scanResource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning resource row: %w", err)
		}
		resources = append(resources, r)
	}

	return resources, rows.Err()
}

func (l *ResourceLedger) MarkAttention(ctx context.Context, tenantID string, typ domain.ResourceType, externalID string) error {
	result, err := l.db.ExecContext(ctx,
		`UPDATE resources SET needs_attention = 1
		 WHERE tenant_id = ? AND type = ? AND external_id = ? AND deleted_at IS NULL`,
		tenantID, string(typ), externalID,
	)
	if err != nil {
		return fmt.Errorf("flagging resource: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

// scanResource decodes one resources row via the given scan function, which
// lets it serve both QueryRow and Rows.
func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var r domain.Resource
	var typ, meta, createdAt string
	var needsAttention int
	var deletedAt sql.NullString

	if err := scan(&r.TenantID, &typ, &r.ExternalID, &meta, &needsAttention, &createdAt, &deletedAt); err != nil {
		return domain.Resource{}, err
	}

	r.Type = domain.ResourceType(typ)
	r.NeedsAttention = needsAttention != 0
	r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if deletedAt.Valid {
		t, _ := time.Parse(timeFormat, deletedAt.String)
		r.DeletedAt = &t
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return domain.Resource{}, fmt.Errorf("decoding resource metadata: %w", err)
	}

	return r, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
