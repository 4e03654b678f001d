package service

import (
	"fmt"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// Pure authorization functions. No I/O: the caller supplies the request, the
// pre-resolved caller context and, where relevant, the resolved delegate.

// Capability flags supplied by the auth layer.
const (
	PermOverride = "approval.override"
	PermManage   = "approval.manage"
	PermView     = "approval.view"
)

// Role is the resolved approval role of a caller.
type Role string

// Roles, lowest to highest authority.
const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

// Caller is the pre-authenticated caller context supplied by the gateway.
type Caller struct {
	EmployeeID   string
	EmployeeName string
	Permissions  map[string]bool
}

// Role resolves the caller's approval role from its permission flags.
func (c Caller) Role() Role {
	return ResolveApprovalRole(c.Permissions)
}

// ResolveApprovalRole maps raw capability flags to a single role.
// Priority: admin > hr > manager > employee.
func ResolveApprovalRole(permissions map[string]bool) Role {
	switch {
	case permissions[PermOverride]:
		return RoleAdmin
	case permissions[PermManage]:
		return RoleHR
	case permissions[PermView]:
		return RoleManager
	default:
		return RoleEmployee
	}
}

// ValidateCreate decides whether the caller may create a request for the
// target employee. Admin and HR may create on behalf of anyone; everyone
// else only for themselves.
func ValidateCreate(caller Caller, targetEmployeeID string) error {
	role := caller.Role()
	if role == RoleAdmin || role == RoleHR {
		return nil
	}
	if caller.EmployeeID != targetEmployeeID {
		return errors.New(errors.ErrCodeForbidden, "you may only create requests for yourself")
	}
	return nil
}

// ValidateAction decides whether the caller may approve or reject the
// request's current step. delegateOf is the approver employee id the caller
// is the resolved delegate of, or empty when no delegation applies.
//
// Returns isAdminOverride = true when the caller is an admin: admins bypass
// the step-ownership and sequence gates, and the action is recorded as an
// override.
func ValidateAction(caller Caller, req *repository.ApprovalRequest, delegateOf string) (isAdminOverride bool, err error) {
	if repository.IsTerminalStatus(req.Status) {
		return false, errors.Conflict(fmt.Sprintf("request already closed (status: %s)", req.Status))
	}

	if caller.Role() == RoleAdmin {
		return true, nil
	}

	// The only exit from escalated is an admin override; step approvers must
	// not resurrect a skipped step.
	if req.Status == repository.StatusEscalated {
		return false, errors.Conflict("escalated request requires an admin override")
	}

	if req.CurrentStep >= len(req.Chain) {
		return false, errors.Conflict("no pending step to act on")
	}
	step := req.Chain[req.CurrentStep]

	authorized := caller.EmployeeID == step.ApproverEmployeeID ||
		(delegateOf != "" && delegateOf == step.ApproverEmployeeID) ||
		(caller.Role() == RoleHR && req.CurrentStep == len(req.Chain)-1)
	if !authorized {
		return false, errors.New(errors.ErrCodeForbidden, "you are not the approver for the current step")
	}

	// Sequential enforcement: every earlier step must be resolved, even when
	// the action arrives via a direct API call.
	for i := 0; i < req.CurrentStep; i++ {
		if req.Chain[i].Status != repository.StepApproved && req.Chain[i].Status != repository.StepSkipped {
			return false, errors.Conflict(fmt.Sprintf("step %d has not been completed yet", i))
		}
	}

	return false, nil
}

// ValidateCancel decides whether the caller may cancel the request.
// Admin and HR may cancel any open request; the requester only their own,
// and only before any approver has acted. Escalated requests are resolved
// through an admin override, never cancellation.
func ValidateCancel(caller Caller, req *repository.ApprovalRequest) error {
	if repository.IsTerminalStatus(req.Status) {
		return errors.Conflict(fmt.Sprintf("request already closed (status: %s)", req.Status))
	}
	if req.Status == repository.StatusEscalated {
		return errors.Conflict("escalated request requires an admin override")
	}

	role := caller.Role()
	if role == RoleAdmin || role == RoleHR {
		return nil
	}
	if caller.EmployeeID != req.EmployeeID {
		return errors.New(errors.ErrCodeForbidden, "you may only cancel your own requests")
	}
	if req.CurrentStep != 0 {
		return errors.Conflict("request cannot be cancelled after an approver has acted")
	}
	return nil
}

// CheckAutoApprove reports whether the request qualifies for auto-approval.
// With no thresholds configured for the type it returns false; otherwise
// every matching threshold's field must be present, numeric and at or below
// its maximum.
func CheckAutoApprove(requestType string, requestData map[string]any, settings *repository.ApprovalSettings) bool {
	matched := false
	for _, t := range settings.AutoApproveThresholds {
		if t.RequestType != requestType {
			continue
		}
		matched = true

		value, ok := numericField(requestData, t.Field)
		if !ok || value > t.MaxValue {
			return false
		}
	}
	return matched
}

// CanViewAllRequests reports whether the caller sees every request rather
// than the own-plus-subordinates view.
func CanViewAllRequests(permissions map[string]bool) bool {
	role := ResolveApprovalRole(permissions)
	return role == RoleAdmin || role == RoleHR
}

// CanActOnRequest is the lightweight check backing "show the action button"
// decisions. It mirrors the ownership part of ValidateAction without the
// terminal-status and sequence gates; it is not a security boundary.
func CanActOnRequest(callerEmployeeID string, req *repository.ApprovalRequest, delegateOf string) bool {
	if req.CurrentStep >= len(req.Chain) {
		return false
	}
	step := req.Chain[req.CurrentStep]
	return callerEmployeeID == step.ApproverEmployeeID ||
		(delegateOf != "" && delegateOf == step.ApproverEmployeeID)
}

// numericField extracts a numeric value from decoded JSON data.
func numericField(data map[string]any, field string) (float64, bool) {
	raw, ok := data[field]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
