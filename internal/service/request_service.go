package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// RequestService orchestrates the request lifecycle: chain construction at
// submission, RBAC-gated actions, and the audit/notification side effects.
type RequestService struct {
	requests    RequestStore
	settings    SettingsStore
	audit       AuditSink
	directory   DirectoryClient
	delegations *DelegationService
	events      EventPublisher
	clock       Clock
	log         *logger.Logger
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	requests RequestStore,
	settings SettingsStore,
	audit AuditSink,
	directory DirectoryClient,
	delegations *DelegationService,
	events EventPublisher,
	clock Clock,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		requests:    requests,
		settings:    settings,
		audit:       audit,
		directory:   directory,
		delegations: delegations,
		events:      events,
		clock:       clock,
		log:         log,
	}
}

// ── Creation ──────────────────────────────────────────────────────────────────

// CreateRequestInput is the submission payload.
type CreateRequestInput struct {
	EmployeeID  string         `json:"employeeId,omitempty"` // empty = the caller
	RequestType string         `json:"requestType"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// CreateRequest builds the approval chain (or auto-approves) and persists the
// request. The returned warnings are chain-build issues that did not block
// submission, e.g. an unresolvable HR employee id.
func (s *RequestService) CreateRequest(ctx context.Context, caller Caller, input CreateRequestInput) (*repository.ApprovalRequest, []string, error) {
	if input.RequestType == "" {
		return nil, nil, errors.InvalidInput("requestType", "request type is required")
	}

	targetID := input.EmployeeID
	if targetID == "" {
		targetID = caller.EmployeeID
	}
	if err := ValidateCreate(caller, targetID); err != nil {
		return nil, nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	employee, err := s.directory.GetByID(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	req := &repository.ApprovalRequest{
		ID:          uuid.NewString(),
		EmployeeID:  targetID,
		RequestType: input.RequestType,
		Payload:     input.Payload,
		CurrentStep: 0,
	}

	var warnings []string
	if TryAutoApprove(input.RequestType, input.Payload, settings) {
		req.Status = repository.StatusApproved
		req.Chain = []repository.ChainStep{}
		req.History = []repository.HistoryEntry{
			{
				Step:            0,
				Action:          repository.ActionAutoApproved,
				PerformedBy:     repository.SystemActor,
				PerformedByName: "System",
				Timestamp:       now,
				Notes:           "Request satisfied all auto-approve thresholds",
				PreviousStatus:  repository.StatusPending,
				NewStatus:       repository.StatusApproved,
			},
		}
	} else {
		allEmployees, err := s.directory.List(ctx)
		if err != nil {
			return nil, nil, err
		}

		chain, buildErrs := BuildApprovalChain(employee, allEmployees, settings, settings.HREmployeeID)
		if len(chain) == 0 {
			return nil, buildErrs, errors.InvalidInput("approvalChain",
				fmt.Sprintf("cannot build approval chain: %v", buildErrs))
		}
		warnings = buildErrs

		req.Status = repository.StatusPending
		req.Chain = chain
		req.History = []repository.HistoryEntry{
			{
				Step:            0,
				Action:          repository.ActionSubmitted,
				PerformedBy:     caller.EmployeeID,
				PerformedByName: caller.EmployeeName,
				Timestamp:       now,
				PreviousStatus:  repository.StatusPending,
				NewStatus:       repository.StatusPending,
			},
		}
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, warnings, err
	}

	action := repository.ActionSubmitted
	if req.Status == repository.StatusApproved {
		action = repository.ActionAutoApproved
	}
	s.appendAudit(ctx, req, action, caller, 0, map[string]any{
		"chainLength": len(req.Chain),
	})

	if req.Status == repository.StatusApproved {
		s.events.PublishRequestEvent(ctx, "request_approved", req, caller.EmployeeID,
			[]string{req.EmployeeID}, map[string]any{"autoApproved": true})
	} else {
		s.events.PublishRequestEvent(ctx, "request_submitted", req, caller.EmployeeID,
			[]string{req.EmployeeID}, nil)
		s.events.PublishRequestEvent(ctx, "approval_required", req, caller.EmployeeID,
			[]string{req.Chain[0].ApproverEmployeeID}, nil)
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("employee_id", req.EmployeeID).
		Str("request_type", req.RequestType).
		Str("status", req.Status).
		Int("chain_length", len(req.Chain)).
		Msg("Approval request created")

	return req, warnings, nil
}

// ── Actions ───────────────────────────────────────────────────────────────────

// Approve records approval of the current step by the caller (or the
// caller acting as a resolved delegate), advancing the chain or completing
// the request.
func (s *RequestService) Approve(ctx context.Context, caller Caller, requestID, notes string) (*repository.ApprovalRequest, error) {
	return s.applyDecision(ctx, caller, requestID, repository.StepApproved, notes)
}

// Reject records rejection of the current step, terminating the request.
func (s *RequestService) Reject(ctx context.Context, caller Caller, requestID, notes string) (*repository.ApprovalRequest, error) {
	return s.applyDecision(ctx, caller, requestID, repository.StepRejected, notes)
}

func (s *RequestService) applyDecision(ctx context.Context, caller Caller, requestID, decision, notes string) (*repository.ApprovalRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	delegateOf, delegation, err := s.resolveCallerDelegation(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	isOverride, err := ValidateAction(caller, req, delegateOf)
	if err != nil {
		return nil, err
	}
	if isOverride {
		return s.applyOverride(ctx, caller, req, decision, notes)
	}

	now := s.clock.Now()
	previousStatus := req.Status
	actedStep := req.CurrentStep
	step := &req.Chain[actedStep]

	step.Status = decision
	step.ActionDate = &now
	step.Notes = notes
	if delegation != nil {
		step.DelegatedTo = &delegation.ToEmployeeID
		step.DelegatedToName = &delegation.ToEmployeeName
	}

	var action, eventType string
	if decision == repository.StepApproved {
		action = repository.ActionApproved
		if actedStep == len(req.Chain)-1 {
			req.Status = repository.StatusApproved
			eventType = "request_approved"
		} else {
			req.CurrentStep++
			req.Status = repository.StatusInProgress
			eventType = "approval_required"
		}
	} else {
		action = repository.ActionRejected
		req.Status = repository.StatusRejected
		eventType = "request_rejected"
	}

	req.History = append(req.History, repository.HistoryEntry{
		Step:            actedStep,
		Action:          action,
		PerformedBy:     caller.EmployeeID,
		PerformedByName: caller.EmployeeName,
		Timestamp:       now,
		Notes:           notes,
		PreviousStatus:  previousStatus,
		NewStatus:       req.Status,
	})

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	metadata := map[string]any{"step": actedStep}
	if delegateOf != "" {
		metadata["delegateOf"] = delegateOf
	}
	s.appendAudit(ctx, req, action, caller, actedStep, metadata)

	recipients := []string{req.EmployeeID}
	if eventType == "approval_required" {
		recipients = []string{req.Chain[req.CurrentStep].ApproverEmployeeID}
	}
	s.events.PublishRequestEvent(ctx, eventType, req, caller.EmployeeID, recipients, nil)

	s.log.Info().
		Str("request_id", req.ID).
		Str("action", action).
		Int("step", actedStep).
		Str("status", req.Status).
		Msg("Approval action recorded")

	return req, nil
}

// Cancel withdraws an open request.
func (s *RequestService) Cancel(ctx context.Context, caller Caller, requestID, notes string) (*repository.ApprovalRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := ValidateCancel(caller, req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	previousStatus := req.Status
	req.Status = repository.StatusCancelled
	req.History = append(req.History, repository.HistoryEntry{
		Step:            req.CurrentStep,
		Action:          repository.ActionCancelled,
		PerformedBy:     caller.EmployeeID,
		PerformedByName: caller.EmployeeName,
		Timestamp:       now,
		Notes:           notes,
		PreviousStatus:  previousStatus,
		NewStatus:       repository.StatusCancelled,
	})

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, req, repository.ActionCancelled, caller, req.CurrentStep, nil)
	s.events.PublishRequestEvent(ctx, "request_cancelled", req, caller.EmployeeID,
		[]string{req.EmployeeID}, nil)

	return req, nil
}

// AdminOverride lets an admin resolve any open or escalated request to a
// terminal decision, bypassing the step gates.
func (s *RequestService) AdminOverride(ctx context.Context, caller Caller, requestID, decision, notes string) (*repository.ApprovalRequest, error) {
	if decision != repository.StatusApproved && decision != repository.StatusRejected {
		return nil, errors.InvalidInput("decision", "must be approved or rejected")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	isOverride, err := ValidateAction(caller, req, "")
	if err != nil {
		return nil, err
	}
	if !isOverride {
		return nil, errors.New(errors.ErrCodeForbidden, "admin override requires the admin role")
	}

	stepDecision := repository.StepApproved
	if decision == repository.StatusRejected {
		stepDecision = repository.StepRejected
	}
	return s.applyOverride(ctx, caller, req, stepDecision, notes)
}

// applyOverride resolves the request to a terminal status on behalf of an
// admin: the current pending step records the decision, any later pending
// steps are skipped, and the history entry is flagged as an override.
func (s *RequestService) applyOverride(ctx context.Context, caller Caller, req *repository.ApprovalRequest, stepDecision, notes string) (*repository.ApprovalRequest, error) {
	now := s.clock.Now()
	previousStatus := req.Status
	actedStep := req.CurrentStep

	for i := req.CurrentStep; i < len(req.Chain); i++ {
		step := &req.Chain[i]
		if step.Status != repository.StepPending {
			continue
		}
		if i == req.CurrentStep {
			step.Status = stepDecision
			step.Notes = notes
		} else {
			step.Status = repository.StepSkipped
			step.Notes = "Skipped by admin override"
		}
		step.ActionDate = &now
	}

	if stepDecision == repository.StepApproved {
		req.Status = repository.StatusApproved
	} else {
		req.Status = repository.StatusRejected
	}

	req.History = append(req.History, repository.HistoryEntry{
		Step:            actedStep,
		Action:          repository.ActionAdminOverride,
		PerformedBy:     caller.EmployeeID,
		PerformedByName: caller.EmployeeName,
		Timestamp:       now,
		Notes:           notes,
		PreviousStatus:  previousStatus,
		NewStatus:       req.Status,
	})

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, req, repository.ActionAdminOverride, caller, actedStep, map[string]any{
		"decision":       req.Status,
		"previousStatus": previousStatus,
	})

	eventType := "request_approved"
	if req.Status == repository.StatusRejected {
		eventType = "request_rejected"
	}
	s.events.PublishRequestEvent(ctx, eventType, req, caller.EmployeeID,
		[]string{req.EmployeeID}, map[string]any{"adminOverride": true})

	s.log.Info().
		Str("request_id", req.ID).
		Str("decision", req.Status).
		Str("admin", caller.EmployeeID).
		Msg("Admin override applied")

	return req, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetRequest returns a request the caller is allowed to see: their own,
// one they appear in as an approver or delegate, or any request for HR/admin.
func (s *RequestService) GetRequest(ctx context.Context, caller Caller, requestID string) (*repository.ApprovalRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !s.canView(caller, req) {
		return nil, errors.New(errors.ErrCodeForbidden, "insufficient permissions to view this request")
	}
	return req, nil
}

// ListRequests returns requests matching the filter. Callers without
// full visibility are restricted to their own requests.
func (s *RequestService) ListRequests(ctx context.Context, caller Caller, filter repository.RequestFilter) ([]*repository.ApprovalRequest, error) {
	if !CanViewAllRequests(caller.Permissions) {
		own := caller.EmployeeID
		filter.EmployeeID = &own
	}
	return s.requests.List(ctx, filter)
}

// GetPendingApprovals returns the requests currently awaiting the caller's
// action, directly or as a recorded delegate.
func (s *RequestService) GetPendingApprovals(ctx context.Context, caller Caller) ([]*repository.ApprovalRequest, error) {
	return s.requests.ListPendingForApprover(ctx, caller.EmployeeID)
}

// GetAuditTrail returns the service-wide audit entries for a request.
func (s *RequestService) GetAuditTrail(ctx context.Context, caller Caller, requestID string) ([]*repository.AuditLogEntry, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !s.canView(caller, req) {
		return nil, errors.New(errors.ErrCodeForbidden, "insufficient permissions to view this request")
	}
	return s.audit.GetByRequestID(ctx, requestID)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// resolveCallerDelegation determines whether the caller acts as the resolved
// delegate of the current step's approver. Returns the approver id the caller
// is delegate of (empty when not) and the matching delegation.
func (s *RequestService) resolveCallerDelegation(ctx context.Context, caller Caller, req *repository.ApprovalRequest) (string, *repository.Delegation, error) {
	step := req.CurrentChainStep()
	if step == nil || caller.EmployeeID == step.ApproverEmployeeID {
		return "", nil, nil
	}

	d, err := s.delegations.ResolveDelegate(ctx, step.ApproverEmployeeID, req.RequestType, s.delegations.Today())
	if err != nil {
		return "", nil, err
	}
	if d == nil || d.ToEmployeeID != caller.EmployeeID {
		return "", nil, nil
	}
	return step.ApproverEmployeeID, d, nil
}

func (s *RequestService) canView(caller Caller, req *repository.ApprovalRequest) bool {
	if CanViewAllRequests(caller.Permissions) {
		return true
	}
	if caller.EmployeeID == req.EmployeeID {
		return true
	}
	for _, step := range req.Chain {
		if step.ApproverEmployeeID == caller.EmployeeID {
			return true
		}
		if step.DelegatedTo != nil && *step.DelegatedTo == caller.EmployeeID {
			return true
		}
	}
	return false
}

// appendAudit writes an audit entry and logs a warning on failure; audit
// write failures never fail the action itself.
func (s *RequestService) appendAudit(ctx context.Context, req *repository.ApprovalRequest, action string, caller Caller, step int, metadata map[string]any) {
	entry := &repository.AuditLogEntry{
		ID:              uuid.NewString(),
		RequestID:       req.ID,
		RequestType:     req.RequestType,
		EmployeeID:      req.EmployeeID,
		Action:          action,
		PerformedBy:     caller.EmployeeID,
		PerformedByName: caller.EmployeeName,
		Step:            step,
		Metadata:        metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", req.ID).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}
