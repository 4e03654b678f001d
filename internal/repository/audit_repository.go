package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/mesworks/be-hr-approvals/internal/platform/database"
	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
)

// AuditRepository appends and reads immutable audit log entries. The table
// has a delete-prevention trigger so Append is the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditLogEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (id, request_id, request_type, employee_id,
		     action, performed_by, performed_by_name,
		     step, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7,
		        $8, $9)
		RETURNING performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.RequestType,
		entry.EmployeeID,
		entry.Action,
		entry.PerformedBy,
		entry.PerformedByName,
		entry.Step,
		metadataJSON,
	).Scan(&entry.Timestamp)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByRequestID returns the audit trail for a request, oldest first.
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*AuditLogEntry, error) {
	query := `
		SELECT id, request_id, request_type, employee_id,
		       action, performed_by, performed_by_name,
		       step, metadata, performed_at
		FROM approval_audit_log
		WHERE request_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditLogEntry, error) {
	var entries []*AuditLogEntry
	for rows.Next() {
		entry := &AuditLogEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.RequestType,
			&entry.EmployeeID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedByName,
			&entry.Step,
			&metadataJSON,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
