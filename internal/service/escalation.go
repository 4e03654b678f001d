package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// EscalationService is the batch engine that skips stalled approval steps.
// It is invoked by an external scheduler (cmd/escalator); runs are safe to
// repeat because EscalateRequest is idempotent per request.
type EscalationService struct {
	requests RequestStore
	settings SettingsStore
	audit    AuditSink
	events   EventPublisher
	clock    Clock
	log      *logger.Logger
}

// NewEscalationService creates a new EscalationService.
func NewEscalationService(
	requests RequestStore,
	settings SettingsStore,
	audit AuditSink,
	events EventPublisher,
	clock Clock,
	log *logger.Logger,
) *EscalationService {
	return &EscalationService{
		requests: requests,
		settings: settings,
		audit:    audit,
		events:   events,
		clock:    clock,
		log:      log,
	}
}

// EscalationResult summarizes one batch run.
type EscalationResult struct {
	Processed int      `json:"processed"`
	Escalated int      `json:"escalated"`
	Errors    []string `json:"errors,omitempty"`
}

// ProcessEscalations scans for requests stalled past the escalation deadline
// and escalates each one. A failure on one request is recorded and never
// aborts the batch; a later run retries it.
func (s *EscalationService) ProcessEscalations(ctx context.Context) (*EscalationResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &EscalationResult{}
	if settings.EscalationDays <= 0 {
		return result, nil
	}

	cutoff := s.clock.Now().Add(-time.Duration(settings.EscalationDays) * 24 * time.Hour)
	stale, err := s.requests.ListStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, req := range stale {
		result.Processed++
		escalated, err := s.EscalateRequest(ctx, req, settings)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Request %s: %s", req.ID, err.Error()))
			continue
		}
		if escalated {
			result.Escalated++
		}
	}

	s.log.Info().
		Int("processed", result.Processed).
		Int("escalated", result.Escalated).
		Int("errors", len(result.Errors)).
		Msg("Escalation batch completed")

	return result, nil
}

// EscalateRequest skips the request's current step and advances the chain,
// or marks the request escalated when the skipped step was the last one.
// Returns false without mutating anything when there is nothing to escalate,
// which makes re-running the batch harmless.
func (s *EscalationService) EscalateRequest(ctx context.Context, req *repository.ApprovalRequest, settings *repository.ApprovalSettings) (bool, error) {
	if req.CurrentStep >= len(req.Chain) {
		return false, nil
	}
	step := &req.Chain[req.CurrentStep]
	if step.Status != repository.StepPending {
		return false, nil
	}

	now := s.clock.Now()
	skippedStep := req.CurrentStep
	skippedApprover := step.ApproverEmployeeID
	skippedApproverName := step.ApproverName
	previousStatus := req.Status

	note := fmt.Sprintf("Automatically skipped after %d days without action / تم تخطي هذه الخطوة تلقائيا بعد %d يوم دون إجراء",
		settings.EscalationDays, settings.EscalationDays)

	step.Status = repository.StepSkipped
	step.ActionDate = &now
	step.Notes = note

	finalStep := req.CurrentStep == len(req.Chain)-1
	if finalStep {
		req.Status = repository.StatusEscalated
		req.EscalatedAt = &now
	} else {
		req.CurrentStep++
		req.Status = repository.StatusInProgress
	}

	req.History = append(req.History, repository.HistoryEntry{
		Step:            skippedStep,
		Action:          repository.ActionEscalated,
		PerformedBy:     repository.SystemActor,
		PerformedByName: "System",
		Timestamp:       now,
		Notes:           note,
		PreviousStatus:  previousStatus,
		NewStatus:       req.Status,
	})

	if err := s.requests.Update(ctx, req); err != nil {
		return false, err
	}

	s.appendAudit(ctx, &repository.AuditLogEntry{
		ID:              uuid.NewString(),
		RequestID:       req.ID,
		RequestType:     req.RequestType,
		EmployeeID:      req.EmployeeID,
		Action:          repository.ActionEscalated,
		PerformedBy:     repository.SystemActor,
		PerformedByName: "System",
		Step:            skippedStep,
		Metadata: map[string]any{
			"skippedApprover":     skippedApprover,
			"skippedApproverName": skippedApproverName,
			"finalStep":           finalStep,
			"escalationDays":      settings.EscalationDays,
		},
	})

	recipients := []string{req.EmployeeID}
	if next := req.CurrentChainStep(); next != nil {
		recipients = append(recipients, next.ApproverEmployeeID)
	}
	s.events.PublishRequestEvent(ctx, "request_escalated", req, repository.SystemActor, recipients, map[string]any{
		"skippedApprover": skippedApprover,
		"finalStep":       finalStep,
	})

	s.log.Info().
		Str("request_id", req.ID).
		Int("skipped_step", skippedStep).
		Bool("final_step", finalStep).
		Msg("Request escalated")

	return true, nil
}

// GetEscalatedRequests returns the admin intervention queue.
func (s *EscalationService) GetEscalatedRequests(ctx context.Context) ([]*repository.ApprovalRequest, error) {
	status := repository.StatusEscalated
	return s.requests.List(ctx, repository.RequestFilter{Status: &status})
}

// IsRequestOverdue reports, without mutating anything, whether a request has
// stalled past the escalation deadline.
func (s *EscalationService) IsRequestOverdue(ctx context.Context, req *repository.ApprovalRequest) (bool, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return false, err
	}
	return isOverdue(req, settings.EscalationDays, s.clock.Now()), nil
}

func isOverdue(req *repository.ApprovalRequest, escalationDays int, now time.Time) bool {
	if req.Status != repository.StatusPending && req.Status != repository.StatusInProgress {
		return false
	}
	if escalationDays <= 0 {
		return false
	}

	lastActivity := req.UpdatedAt
	if req.CreatedAt.After(lastActivity) {
		lastActivity = req.CreatedAt
	}
	cutoff := now.Add(-time.Duration(escalationDays) * 24 * time.Hour)
	return !lastActivity.After(cutoff)
}

func (s *EscalationService) appendAudit(ctx context.Context, entry *repository.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", entry.RequestID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
