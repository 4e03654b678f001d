package repository

import "time"

// ── Domain types for the HR approval workflow ────────────────────────────────

// Request statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
	StatusEscalated  = "escalated"
)

// Chain step statuses.
const (
	StepPending  = "pending"
	StepApproved = "approved"
	StepRejected = "rejected"
	StepSkipped  = "skipped"
)

// History / audit actions.
const (
	ActionSubmitted     = "submitted"
	ActionAutoApproved  = "auto_approved"
	ActionApproved      = "approved"
	ActionRejected      = "rejected"
	ActionCancelled     = "cancelled"
	ActionEscalated     = "escalated"
	ActionAdminOverride = "admin_override"
)

// SystemActor is the performer recorded for automated transitions.
const SystemActor = "system"

// IsTerminalStatus reports whether a request status permits no further
// transitions. Escalated is deliberately not terminal: it awaits an admin
// override.
func IsTerminalStatus(status string) bool {
	return status == StatusApproved || status == StatusRejected || status == StatusCancelled
}

// EmployeeInfo is the read-only employee record served by the directory
// service. ManagerID is nil for the top of the hierarchy.
type EmployeeInfo struct {
	EmployeeID     string  `json:"employeeId"`
	EmployeeName   string  `json:"employeeName"`
	ManagerID      *string `json:"managerId,omitempty"`
	JobLevel       int     `json:"jobLevel"`
	JobTitle       string  `json:"jobTitle"`
	DepartmentID   string  `json:"departmentId"`
	DepartmentName string  `json:"departmentName"`
}

// AutoApproveThreshold is a per-request-type numeric rule. A request whose
// numeric field is at or below MaxValue for every matching threshold bypasses
// the approval chain entirely.
type AutoApproveThreshold struct {
	RequestType string  `json:"requestType"`
	Field       string  `json:"field"`
	MaxValue    float64 `json:"maxValue"`
}

// ApprovalSettings is the org-wide singleton configuration document.
type ApprovalSettings struct {
	MaxApprovalLevels     int                    `json:"maxApprovalLevels"`
	HRAlwaysFinalLevel    bool                   `json:"hrAlwaysFinalLevel"`
	HREmployeeID          string                 `json:"hrEmployeeId"`
	EscalationDays        int                    `json:"escalationDays"` // 0 disables escalation
	AutoApproveThresholds []AutoApproveThreshold `json:"autoApproveThresholds"`
	AllowDelegation       bool                   `json:"allowDelegation"`
	UpdatedAt             time.Time              `json:"updatedAt"`
}

// ChainStep is one frozen approver slot in a request's approval chain.
// Once the chain is written, later org-hierarchy changes never alter it.
type ChainStep struct {
	ApproverEmployeeID string     `json:"approverEmployeeId"`
	ApproverName       string     `json:"approverName"`
	ApproverJobTitle   string     `json:"approverJobTitle"`
	Level              int        `json:"level"`
	DepartmentID       string     `json:"departmentId"`
	DepartmentName     string     `json:"departmentName"`
	Status             string     `json:"status"` // pending | approved | rejected | skipped
	ActionDate         *time.Time `json:"actionDate,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	DelegatedTo        *string    `json:"delegatedTo,omitempty"`
	DelegatedToName    *string    `json:"delegatedToName,omitempty"`
}

// HistoryEntry is one append-only record in a request's embedded audit trail.
type HistoryEntry struct {
	Step            int       `json:"step"`
	Action          string    `json:"action"`
	PerformedBy     string    `json:"performedBy"`
	PerformedByName string    `json:"performedByName"`
	Timestamp       time.Time `json:"timestamp"`
	Notes           string    `json:"notes,omitempty"`
	PreviousStatus  string    `json:"previousStatus"`
	NewStatus       string    `json:"newStatus"`
}

// ApprovalRequest is an HR request with its frozen approval chain.
// CurrentStep indexes into Chain; CurrentStep == len(Chain) means every step
// has been acted on. Version is the optimistic-concurrency guard: every
// update must carry the version it read and bumps it by one.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	EmployeeID  string         `json:"employeeId"`
	RequestType string         `json:"requestType"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      string         `json:"status"`
	CurrentStep int            `json:"currentStep"`
	Chain       []ChainStep    `json:"approvalChain"`
	History     []HistoryEntry `json:"history"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	EscalatedAt *time.Time     `json:"escalatedAt,omitempty"`
	Version     int64          `json:"version"`
}

// CurrentChainStep returns the step CurrentStep points at, or nil when the
// chain has been fully traversed.
func (r *ApprovalRequest) CurrentChainStep() *ChainStep {
	if r.CurrentStep < 0 || r.CurrentStep >= len(r.Chain) {
		return nil
	}
	return &r.Chain[r.CurrentStep]
}

// DelegationAllTypes is the sentinel meaning a delegation covers every
// request type.
const DelegationAllTypes = "all"

// Delegation is a time-bounded handoff of approval authority. Dates are
// inclusive YYYY-MM-DD strings, compared lexicographically.
type Delegation struct {
	ID             string    `json:"id"`
	FromEmployeeID string    `json:"fromEmployeeId"`
	ToEmployeeID   string    `json:"toEmployeeId"`
	ToEmployeeName string    `json:"toEmployeeName"`
	StartDate      string    `json:"startDate"`
	EndDate        string    `json:"endDate"`
	RequestTypes   []string  `json:"requestTypes"` // ["all"] or explicit types
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Covers reports whether the delegation applies to the given request type on
// the given date. It does not consider IsActive.
func (d *Delegation) Covers(requestType, date string) bool {
	if date < d.StartDate || date > d.EndDate {
		return false
	}
	for _, t := range d.RequestTypes {
		if t == DelegationAllTypes || t == requestType {
			return true
		}
	}
	return false
}

// AuditLogEntry is one immutable record in the service-wide audit log,
// written by RBAC-gated actions and by the escalation batch.
type AuditLogEntry struct {
	ID              string         `json:"id"`
	RequestID       string         `json:"requestId"`
	RequestType     string         `json:"requestType"`
	EmployeeID      string         `json:"employeeId"`
	Action          string         `json:"action"`
	PerformedBy     string         `json:"performedBy"`
	PerformedByName string         `json:"performedByName"`
	Step            int            `json:"step"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}
