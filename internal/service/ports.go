package service

import (
	"context"
	"time"

	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// The service layer depends on these narrow interfaces rather than the
// concrete repositories so tests can substitute in-memory fakes.

// RequestStore persists approval requests.
type RequestStore interface {
	Create(ctx context.Context, req *repository.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	Update(ctx context.Context, req *repository.ApprovalRequest) error
	List(ctx context.Context, filter repository.RequestFilter) ([]*repository.ApprovalRequest, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]*repository.ApprovalRequest, error)
	ListPendingForApprover(ctx context.Context, employeeID string) ([]*repository.ApprovalRequest, error)
}

// DelegationStore persists delegation records.
type DelegationStore interface {
	Create(ctx context.Context, d *repository.Delegation) error
	Deactivate(ctx context.Context, id string) error
	ListActiveByFrom(ctx context.Context, fromEmployeeID string) ([]*repository.Delegation, error)
	ListByFrom(ctx context.Context, fromEmployeeID string) ([]*repository.Delegation, error)
	ListByTo(ctx context.Context, toEmployeeID string) ([]*repository.Delegation, error)
	ListAll(ctx context.Context) ([]*repository.Delegation, error)
}

// SettingsStore reads and writes the org-wide settings singleton.
type SettingsStore interface {
	Get(ctx context.Context) (*repository.ApprovalSettings, error)
	Put(ctx context.Context, s *repository.ApprovalSettings) error
}

// AuditSink appends to and reads the append-only audit log.
type AuditSink interface {
	Append(ctx context.Context, entry *repository.AuditLogEntry) error
	GetByRequestID(ctx context.Context, requestID string) ([]*repository.AuditLogEntry, error)
}

// DirectoryClient reads the external employee directory.
type DirectoryClient interface {
	GetByID(ctx context.Context, employeeID string) (*repository.EmployeeInfo, error)
	List(ctx context.Context) ([]*repository.EmployeeInfo, error)
}

// EventPublisher emits workflow events for the notification service.
// Publish failures must never fail the workflow action.
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]any)
}

// Clock abstracts wall-clock reads so escalation deadlines are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
