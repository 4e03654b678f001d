package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

const dateLayout = "2006-01-02"

// DelegationService manages temporary handoffs of approval authority and
// resolves the active delegate for an approver.
type DelegationService struct {
	store    DelegationStore
	settings SettingsStore
	clock    Clock
	log      *logger.Logger
}

// NewDelegationService creates a new DelegationService.
func NewDelegationService(store DelegationStore, settings SettingsStore, clock Clock, log *logger.Logger) *DelegationService {
	return &DelegationService{store: store, settings: settings, clock: clock, log: log}
}

// CreateDelegationInput is the caller-facing creation payload.
type CreateDelegationInput struct {
	ToEmployeeID   string   `json:"toEmployeeId"`
	ToEmployeeName string   `json:"toEmployeeName"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	RequestTypes   []string `json:"requestTypes"`
}

// Create records a delegation from the caller to another employee.
func (s *DelegationService) Create(ctx context.Context, caller Caller, input CreateDelegationInput) (*repository.Delegation, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.AllowDelegation {
		return nil, errors.New(errors.ErrCodeForbidden, "delegation is disabled by approval settings")
	}

	if input.ToEmployeeID == "" {
		return nil, errors.InvalidInput("toEmployeeId", "delegate employee id is required")
	}
	if input.ToEmployeeID == caller.EmployeeID {
		return nil, errors.InvalidInput("toEmployeeId", "cannot delegate to yourself")
	}
	if err := validateDateRange(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}
	if len(input.RequestTypes) == 0 {
		return nil, errors.InvalidInput("requestTypes", "at least one request type (or \"all\") is required")
	}

	d := &repository.Delegation{
		ID:             uuid.NewString(),
		FromEmployeeID: caller.EmployeeID,
		ToEmployeeID:   input.ToEmployeeID,
		ToEmployeeName: input.ToEmployeeName,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		RequestTypes:   input.RequestTypes,
		IsActive:       true,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("delegation_id", d.ID).
		Str("from", d.FromEmployeeID).
		Str("to", d.ToEmployeeID).
		Str("start", d.StartDate).
		Str("end", d.EndDate).
		Msg("Delegation created")

	return d, nil
}

// Deactivate revokes a delegation. Only its grantor, HR, or an admin may do so.
func (s *DelegationService) Deactivate(ctx context.Context, caller Caller, id string) error {
	if caller.Role() == RoleEmployee || caller.Role() == RoleManager {
		own, err := s.store.ListByFrom(ctx, caller.EmployeeID)
		if err != nil {
			return err
		}
		mine := false
		for _, d := range own {
			if d.ID == id {
				mine = true
				break
			}
		}
		if !mine {
			return errors.New(errors.ErrCodeForbidden, "you may only deactivate your own delegations")
		}
	}
	return s.store.Deactivate(ctx, id)
}

// ListByFrom returns delegations granted by an employee.
func (s *DelegationService) ListByFrom(ctx context.Context, fromEmployeeID string) ([]*repository.Delegation, error) {
	return s.store.ListByFrom(ctx, fromEmployeeID)
}

// ListByTo returns delegations received by an employee.
func (s *DelegationService) ListByTo(ctx context.Context, toEmployeeID string) ([]*repository.Delegation, error) {
	return s.store.ListByTo(ctx, toEmployeeID)
}

// ListAll returns every delegation. Restricted to HR and admins.
func (s *DelegationService) ListAll(ctx context.Context, caller Caller) ([]*repository.Delegation, error) {
	if !CanViewAllRequests(caller.Permissions) {
		return nil, errors.New(errors.ErrCodeForbidden, "insufficient permissions to list all delegations")
	}
	return s.store.ListAll(ctx)
}

// ResolveDelegate returns the active delegation covering the approver for
// the given request type and date, or nil when none applies. When several
// overlapping delegations match, the most recently created one wins.
func (s *DelegationService) ResolveDelegate(ctx context.Context, approverEmployeeID, requestType, date string) (*repository.Delegation, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.AllowDelegation {
		return nil, nil
	}

	// Ordered most-recently-created first by the store.
	delegations, err := s.store.ListActiveByFrom(ctx, approverEmployeeID)
	if err != nil {
		return nil, err
	}
	for _, d := range delegations {
		if d.Covers(requestType, date) {
			return d, nil
		}
	}
	return nil, nil
}

// Today returns the clock's current date in the delegation date format.
func (s *DelegationService) Today() string {
	return s.clock.Now().Format(dateLayout)
}

func validateDateRange(start, end string) error {
	if _, err := time.Parse(dateLayout, start); err != nil {
		return errors.InvalidInput("startDate", "must be YYYY-MM-DD")
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		return errors.InvalidInput("endDate", "must be YYYY-MM-DD")
	}
	if end < start {
		return errors.InvalidInput("endDate", "must not be before startDate")
	}
	return nil
}
