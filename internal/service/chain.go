package service

import (
	"fmt"
	"sort"

	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// Chain construction. The chain is built once at submission from the org
// hierarchy and frozen onto the request; later hierarchy changes never
// touch it.

// CollectManagerChain walks managerId pointers upward from the employee and
// returns approver candidates sorted ascending by job level (first-line
// manager first). A visited set plus a hard iteration cap guard against
// cycles in the manager graph; only managers with a job level strictly above
// the requester's are accepted, which filters out flat or lateral "manager"
// records.
func CollectManagerChain(employee *repository.EmployeeInfo, allEmployees []*repository.EmployeeInfo, maxLevels int) []*repository.EmployeeInfo {
	byID := make(map[string]*repository.EmployeeInfo, len(allEmployees))
	for _, e := range allEmployees {
		byID[e.EmployeeID] = e
	}

	visited := map[string]bool{employee.EmployeeID: true}
	var candidates []*repository.EmployeeInfo

	current := employee
	for i := 0; i <= len(allEmployees); i++ {
		if current.ManagerID == nil || len(candidates) >= maxLevels {
			break
		}
		manager, ok := byID[*current.ManagerID]
		if !ok || visited[manager.EmployeeID] {
			break
		}
		visited[manager.EmployeeID] = true

		if manager.JobLevel > employee.JobLevel {
			candidates = append(candidates, manager)
		}
		current = manager
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].JobLevel < candidates[j].JobLevel
	})
	return candidates
}

// BuildApprovalChain derives the frozen approver chain for a request.
// Failures are reported as descriptive strings, never panics: an empty chain
// with errors means submission cannot proceed; a non-empty chain with errors
// (unresolvable HR id) is usable but worth surfacing as a warning.
//
// The chain is truncated to maxApprovalLevels after the HR step is appended,
// so a manager chain that already fills the cap drops the HR step.
func BuildApprovalChain(
	employee *repository.EmployeeInfo,
	allEmployees []*repository.EmployeeInfo,
	settings *repository.ApprovalSettings,
	hrEmployeeID string,
) ([]repository.ChainStep, []string) {
	var errs []string

	if employee.ManagerID == nil {
		errs = append(errs, fmt.Sprintf("employee %s has no manager assigned", employee.EmployeeID))
		return nil, errs
	}

	candidates := CollectManagerChain(employee, allEmployees, settings.MaxApprovalLevels)
	if len(candidates) == 0 {
		errs = append(errs, fmt.Sprintf("no eligible approvers found for employee %s", employee.EmployeeID))
		return nil, errs
	}

	chain := make([]repository.ChainStep, 0, len(candidates)+1)
	for i, m := range candidates {
		chain = append(chain, newChainStep(m, i))
	}

	if settings.HRAlwaysFinalLevel && hrEmployeeID != "" {
		hr := findEmployee(allEmployees, hrEmployeeID)
		switch {
		case hr == nil:
			errs = append(errs, fmt.Sprintf("hr employee %s not found in directory", hrEmployeeID))
		case hr.EmployeeID == employee.EmployeeID || chainContains(chain, hr.EmployeeID):
			// Already covered, nothing to append.
		default:
			chain = append(chain, newChainStep(hr, len(chain)))
		}
	}

	if len(chain) > settings.MaxApprovalLevels {
		chain = chain[:settings.MaxApprovalLevels]
	}

	return chain, errs
}

// TryAutoApprove reports whether the request bypasses the chain entirely.
// When true the caller creates the request pre-approved with no steps.
func TryAutoApprove(requestType string, requestData map[string]any, settings *repository.ApprovalSettings) bool {
	return CheckAutoApprove(requestType, requestData, settings)
}

// ValidateChain is a post-hoc sanity check on a built chain.
func ValidateChain(chain []repository.ChainStep, settings *repository.ApprovalSettings) []string {
	var errs []string

	if len(chain) == 0 {
		errs = append(errs, "approval chain is empty")
	}
	if len(chain) > settings.MaxApprovalLevels {
		errs = append(errs, fmt.Sprintf("approval chain has %d steps, maximum is %d", len(chain), settings.MaxApprovalLevels))
	}

	seen := make(map[string]bool, len(chain))
	for _, step := range chain {
		if seen[step.ApproverEmployeeID] {
			errs = append(errs, fmt.Sprintf("duplicate approver %s in chain", step.ApproverEmployeeID))
		}
		seen[step.ApproverEmployeeID] = true
	}
	return errs
}

func newChainStep(m *repository.EmployeeInfo, level int) repository.ChainStep {
	return repository.ChainStep{
		ApproverEmployeeID: m.EmployeeID,
		ApproverName:       m.EmployeeName,
		ApproverJobTitle:   m.JobTitle,
		Level:              level,
		DepartmentID:       m.DepartmentID,
		DepartmentName:     m.DepartmentName,
		Status:             repository.StepPending,
	}
}

func findEmployee(all []*repository.EmployeeInfo, id string) *repository.EmployeeInfo {
	for _, e := range all {
		if e.EmployeeID == id {
			return e
		}
	}
	return nil
}

func chainContains(chain []repository.ChainStep, employeeID string) bool {
	for _, step := range chain {
		if step.ApproverEmployeeID == employeeID {
			return true
		}
	}
	return false
}
