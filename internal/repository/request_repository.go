package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mesworks/be-hr-approvals/internal/platform/database"
	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
)

// RequestRepository persists approval requests. The chain and history are
// stored as JSONB on the request row, so a request is always read and written
// as one aggregate. Updates are guarded by the version column: a write that
// carries a stale version affects zero rows and surfaces as a conflict.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, employee_id, request_type, payload, status,
	current_step, chain, history,
	created_at, updated_at, escalated_at, version
`

// Create inserts a new request. The caller supplies the id; version starts at 1.
func (r *RequestRepository) Create(ctx context.Context, req *ApprovalRequest) error {
	payloadJSON, chainJSON, historyJSON, err := marshalRequestDocs(req)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_requests
		    (id, employee_id, request_type, payload, status,
		     current_step, chain, history, escalated_at, version)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9, 1)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		req.ID,
		req.EmployeeID,
		req.RequestType,
		payloadJSON,
		req.Status,
		req.CurrentStep,
		chainJSON,
		historyJSON,
		req.EscalatedAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
	}

	req.Version = 1
	return nil
}

// GetByID retrieves a request by its primary key.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = $1`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_request", id)
	}
	return req, err
}

// Update writes the full aggregate back, guarded by the version the caller
// read. A concurrent writer (human action vs. escalation batch) makes the
// guard fail; the caller must re-read and re-apply.
func (r *RequestRepository) Update(ctx context.Context, req *ApprovalRequest) error {
	payloadJSON, chainJSON, historyJSON, err := marshalRequestDocs(req)
	if err != nil {
		return err
	}

	query := `
		UPDATE approval_requests
		SET payload      = $3,
		    status       = $4,
		    current_step = $5,
		    chain        = $6,
		    history      = $7,
		    escalated_at = $8,
		    updated_at   = NOW(),
		    version      = version + 1
		WHERE id = $1 AND version = $2
		RETURNING updated_at, version
	`

	err = r.db.QueryRow(ctx, query,
		req.ID,
		req.Version,
		payloadJSON,
		req.Status,
		req.CurrentStep,
		chainJSON,
		historyJSON,
		req.EscalatedAt,
	).Scan(&req.UpdatedAt, &req.Version)
	if err == pgx.ErrNoRows {
		return errors.Conflict(fmt.Sprintf("request %s was modified concurrently", req.ID))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval request")
	}
	return nil
}

// RequestFilter narrows List results. Nil fields are ignored.
type RequestFilter struct {
	EmployeeID  *string
	Status      *string
	RequestType *string
}

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(ctx context.Context, filter RequestFilter) ([]*ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.EmployeeID != nil {
		argCount++
		query += fmt.Sprintf(" AND employee_id = $%d", argCount)
		args = append(args, *filter.EmployeeID)
	}
	if filter.Status != nil {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
	}
	if filter.RequestType != nil {
		argCount++
		query += fmt.Sprintf(" AND request_type = $%d", argCount)
		args = append(args, *filter.RequestType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval requests")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListStale returns open requests not updated since the cutoff, oldest first.
// This is the escalation scan.
func (r *RequestRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE status IN ('pending', 'in_progress')
		  AND updated_at <= $1
		ORDER BY updated_at ASC
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stale requests")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListPendingForApprover returns open requests whose current step is assigned
// to the given employee, directly or via the step's recorded delegate.
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, employeeID string) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE status IN ('pending', 'in_progress')
		  AND current_step < jsonb_array_length(chain)
		  AND (chain -> current_step ->> 'approverEmployeeId' = $1
		       OR chain -> current_step ->> 'delegatedTo' = $1)
		ORDER BY updated_at ASC
	`

	rows, err := r.db.Query(ctx, query, employeeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func marshalRequestDocs(req *ApprovalRequest) (payload, chain, history []byte, err error) {
	if req.Payload != nil {
		payload, err = json.Marshal(req.Payload)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request payload")
		}
	}
	if req.Chain == nil {
		req.Chain = []ChainStep{}
	}
	chain, err = json.Marshal(req.Chain)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval chain")
	}
	if req.History == nil {
		req.History = []HistoryEntry{}
	}
	history, err = json.Marshal(req.History)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request history")
	}
	return payload, chain, history, nil
}

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *RequestRepository) scanRequest(row requestScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	var payloadJSON, chainJSON, historyJSON []byte

	err := row.Scan(
		&req.ID,
		&req.EmployeeID,
		&req.RequestType,
		&payloadJSON,
		&req.Status,
		&req.CurrentStep,
		&chainJSON,
		&historyJSON,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.EscalatedAt,
		&req.Version,
	)
	if err != nil {
		return nil, err
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal request payload")
		}
	}
	if err := json.Unmarshal(chainJSON, &req.Chain); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approval chain")
	}
	if err := json.Unmarshal(historyJSON, &req.History); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal request history")
	}
	return req, nil
}

func (r *RequestRepository) scanRows(rows pgx.Rows) ([]*ApprovalRequest, error) {
	var requests []*ApprovalRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}
