package repository

import (
	"context"
	"encoding/json"

	"github.com/mesworks/be-hr-approvals/internal/platform/database"
	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
)

// DelegationRepository handles CRUD for approval delegations.
type DelegationRepository struct {
	db *database.DB
}

// NewDelegationRepository creates a new DelegationRepository.
func NewDelegationRepository(db *database.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

const delegationColumns = `
	id, from_employee_id, to_employee_id, to_employee_name,
	start_date, end_date, request_types, is_active, created_at
`

// Create inserts a new delegation.
func (r *DelegationRepository) Create(ctx context.Context, d *Delegation) error {
	typesJSON, err := json.Marshal(d.RequestTypes)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request types")
	}

	query := `
		INSERT INTO approval_delegations
		    (id, from_employee_id, to_employee_id, to_employee_name,
		     start_date, end_date, request_types, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.QueryRow(ctx, query,
		d.ID,
		d.FromEmployeeID,
		d.ToEmployeeID,
		d.ToEmployeeName,
		d.StartDate,
		d.EndDate,
		typesJSON,
		d.IsActive,
	).Scan(&d.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create delegation")
	}
	return nil
}

// Deactivate marks a delegation inactive. Deactivating an already inactive
// delegation is a no-op success.
func (r *DelegationRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE approval_delegations
		SET is_active = FALSE
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate delegation")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("delegation", id)
	}
	return nil
}

// ListActiveByFrom returns active delegations granted by an employee, most
// recently created first. The resolver relies on this ordering for
// precedence when several delegations overlap.
func (r *DelegationRepository) ListActiveByFrom(ctx context.Context, fromEmployeeID string) ([]*Delegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM approval_delegations
		WHERE from_employee_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
	`
	return r.queryDelegations(ctx, query, fromEmployeeID)
}

// ListByFrom returns all delegations granted by an employee.
func (r *DelegationRepository) ListByFrom(ctx context.Context, fromEmployeeID string) ([]*Delegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM approval_delegations
		WHERE from_employee_id = $1
		ORDER BY created_at DESC
	`
	return r.queryDelegations(ctx, query, fromEmployeeID)
}

// ListByTo returns all delegations received by an employee.
func (r *DelegationRepository) ListByTo(ctx context.Context, toEmployeeID string) ([]*Delegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM approval_delegations
		WHERE to_employee_id = $1
		ORDER BY created_at DESC
	`
	return r.queryDelegations(ctx, query, toEmployeeID)
}

// ListAll returns every delegation, most recent first.
func (r *DelegationRepository) ListAll(ctx context.Context) ([]*Delegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM approval_delegations
		ORDER BY created_at DESC
	`
	return r.queryDelegations(ctx, query)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *DelegationRepository) queryDelegations(ctx context.Context, query string, args ...any) ([]*Delegation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list delegations")
	}
	defer rows.Close()

	var delegations []*Delegation
	for rows.Next() {
		d := &Delegation{}
		var typesJSON []byte
		err := rows.Scan(
			&d.ID,
			&d.FromEmployeeID,
			&d.ToEmployeeID,
			&d.ToEmployeeName,
			&d.StartDate,
			&d.EndDate,
			&typesJSON,
			&d.IsActive,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan delegation")
		}
		if err := json.Unmarshal(typesJSON, &d.RequestTypes); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal request types")
		}
		delegations = append(delegations, d)
	}
	return delegations, nil
}
