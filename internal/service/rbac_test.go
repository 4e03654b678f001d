package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

func TestResolveApprovalRole(t *testing.T) {
	tests := []struct {
		name  string
		perms map[string]bool
		want  Role
	}{
		{"no permissions", nil, RoleEmployee},
		{"view only", map[string]bool{PermView: true}, RoleManager},
		{"manage", map[string]bool{PermManage: true}, RoleHR},
		{"override", map[string]bool{PermOverride: true}, RoleAdmin},
		{"override wins over manage", map[string]bool{PermOverride: true, PermManage: true}, RoleAdmin},
		{"manage wins over view", map[string]bool{PermManage: true, PermView: true}, RoleHR},
		{"false flags ignored", map[string]bool{PermOverride: false, PermView: true}, RoleManager},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveApprovalRole(tt.perms))
		})
	}
}

func TestValidateCreate(t *testing.T) {
	t.Run("employee may create for themselves", func(t *testing.T) {
		assert.NoError(t, ValidateCreate(callerWith("emp-1"), "emp-1"))
	})

	t.Run("employee may not create for others", func(t *testing.T) {
		err := ValidateCreate(callerWith("emp-1"), "emp-2")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))
	})

	t.Run("hr and admin may create on behalf of anyone", func(t *testing.T) {
		assert.NoError(t, ValidateCreate(callerWith("hr-1", PermManage), "emp-2"))
		assert.NoError(t, ValidateCreate(callerWith("adm-1", PermOverride), "emp-2"))
	})
}

func TestValidateAction(t *testing.T) {
	twoStep := func() *repository.ApprovalRequest {
		return pendingRequest("req-1", "emp-1",
			pendingStep("mgr-1", "Supervisor", 0),
			pendingStep("mgr-2", "Manager", 1),
		)
	}

	t.Run("current approver may act", func(t *testing.T) {
		isOverride, err := ValidateAction(callerWith("mgr-1"), twoStep(), "")
		require.NoError(t, err)
		assert.False(t, isOverride)
	})

	t.Run("later approver may not act out of turn", func(t *testing.T) {
		_, err := ValidateAction(callerWith("mgr-2"), twoStep(), "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))
	})

	t.Run("resolved delegate of the current approver may act", func(t *testing.T) {
		isOverride, err := ValidateAction(callerWith("del-1"), twoStep(), "mgr-1")
		require.NoError(t, err)
		assert.False(t, isOverride)
	})

	t.Run("delegate of a later approver may not act", func(t *testing.T) {
		_, err := ValidateAction(callerWith("del-1"), twoStep(), "mgr-2")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))
	})

	t.Run("hr may act only on the final step", func(t *testing.T) {
		req := twoStep()
		_, err := ValidateAction(callerWith("hr-9", PermManage), req, "")
		require.Error(t, err)

		req.CurrentStep = 1
		req.Chain[0].Status = repository.StepApproved
		isOverride, err := ValidateAction(callerWith("hr-9", PermManage), req, "")
		require.NoError(t, err)
		assert.False(t, isOverride)
	})

	t.Run("admin bypasses ownership and sequence", func(t *testing.T) {
		isOverride, err := ValidateAction(callerWith("adm-1", PermOverride), twoStep(), "")
		require.NoError(t, err)
		assert.True(t, isOverride)
	})

	t.Run("escalated request rejects non-admin roles", func(t *testing.T) {
		req := twoStep()
		req.Status = repository.StatusEscalated
		req.CurrentStep = 1
		req.Chain[0].Status = repository.StepApproved
		req.Chain[1].Status = repository.StepSkipped

		for _, c := range []Caller{
			callerWith("mgr-2"),
			callerWith("del-1"),
			callerWith("hr-9", PermManage),
		} {
			_, err := ValidateAction(c, req, "mgr-2")
			require.Error(t, err, c.EmployeeID)
			assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
		}
	})

	t.Run("admin may act on an escalated request", func(t *testing.T) {
		req := twoStep()
		req.Status = repository.StatusEscalated
		isOverride, err := ValidateAction(callerWith("adm-1", PermOverride), req, "")
		require.NoError(t, err)
		assert.True(t, isOverride)
	})

	t.Run("terminal request rejects everyone, admin included", func(t *testing.T) {
		for _, status := range []string{
			repository.StatusApproved,
			repository.StatusRejected,
			repository.StatusCancelled,
		} {
			req := twoStep()
			req.Status = status
			_, err := ValidateAction(callerWith("adm-1", PermOverride), req, "")
			require.Error(t, err, status)
			assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
		}
	})

	t.Run("incomplete earlier step blocks the current one", func(t *testing.T) {
		req := twoStep()
		req.CurrentStep = 1 // step 0 still pending
		_, err := ValidateAction(callerWith("mgr-2"), req, "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
	})

	t.Run("skipped earlier step does not block", func(t *testing.T) {
		req := twoStep()
		req.Chain[0].Status = repository.StepSkipped
		req.CurrentStep = 1
		_, err := ValidateAction(callerWith("mgr-2"), req, "")
		assert.NoError(t, err)
	})

	t.Run("exhausted chain has no step to act on", func(t *testing.T) {
		req := twoStep()
		req.Status = repository.StatusEscalated
		req.CurrentStep = len(req.Chain)
		_, err := ValidateAction(callerWith("mgr-2"), req, "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
	})
}

func TestValidateCancel(t *testing.T) {
	base := func() *repository.ApprovalRequest {
		return pendingRequest("req-1", "emp-1",
			pendingStep("mgr-1", "Supervisor", 0),
			pendingStep("mgr-2", "Manager", 1),
		)
	}

	t.Run("requester may cancel before any action", func(t *testing.T) {
		assert.NoError(t, ValidateCancel(callerWith("emp-1"), base()))
	})

	t.Run("requester may not cancel after an approver acted", func(t *testing.T) {
		req := base()
		req.Chain[0].Status = repository.StepApproved
		req.CurrentStep = 1
		err := ValidateCancel(callerWith("emp-1"), req)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
	})

	t.Run("others may not cancel", func(t *testing.T) {
		err := ValidateCancel(callerWith("emp-2"), base())
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))
	})

	t.Run("hr may cancel mid-chain", func(t *testing.T) {
		req := base()
		req.Chain[0].Status = repository.StepApproved
		req.CurrentStep = 1
		assert.NoError(t, ValidateCancel(callerWith("hr-1", PermManage), req))
	})

	t.Run("terminal request cannot be cancelled", func(t *testing.T) {
		req := base()
		req.Status = repository.StatusApproved
		err := ValidateCancel(callerWith("adm-1", PermOverride), req)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
	})

	t.Run("escalated request cannot be cancelled by any role", func(t *testing.T) {
		req := base()
		req.Status = repository.StatusEscalated
		req.Chain[0].Status = repository.StepSkipped

		for _, c := range []Caller{
			callerWith("emp-1"),
			callerWith("hr-1", PermManage),
			callerWith("adm-1", PermOverride),
		} {
			err := ValidateCancel(c, req)
			require.Error(t, err, c.EmployeeID)
			assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
		}
	})
}

func TestCheckAutoApprove(t *testing.T) {
	settings := &repository.ApprovalSettings{
		AutoApproveThresholds: []repository.AutoApproveThreshold{
			{RequestType: "leave", Field: "days", MaxValue: 2},
			{RequestType: "expense", Field: "amount", MaxValue: 500},
			{RequestType: "expense", Field: "items", MaxValue: 3},
		},
	}

	t.Run("under threshold", func(t *testing.T) {
		assert.True(t, CheckAutoApprove("leave", map[string]any{"days": float64(1)}, settings))
	})

	t.Run("exactly at threshold", func(t *testing.T) {
		assert.True(t, CheckAutoApprove("leave", map[string]any{"days": float64(2)}, settings))
	})

	t.Run("over threshold", func(t *testing.T) {
		assert.False(t, CheckAutoApprove("leave", map[string]any{"days": float64(3)}, settings))
	})

	t.Run("no threshold for the type", func(t *testing.T) {
		assert.False(t, CheckAutoApprove("transfer", map[string]any{"days": float64(1)}, settings))
	})

	t.Run("missing field fails", func(t *testing.T) {
		assert.False(t, CheckAutoApprove("leave", map[string]any{}, settings))
	})

	t.Run("non-numeric field fails", func(t *testing.T) {
		assert.False(t, CheckAutoApprove("leave", map[string]any{"days": "two"}, settings))
	})

	t.Run("all matching thresholds must pass", func(t *testing.T) {
		assert.True(t, CheckAutoApprove("expense",
			map[string]any{"amount": float64(100), "items": float64(2)}, settings))
		assert.False(t, CheckAutoApprove("expense",
			map[string]any{"amount": float64(100), "items": float64(5)}, settings))
		assert.False(t, CheckAutoApprove("expense",
			map[string]any{"amount": float64(100)}, settings))
	})

	t.Run("integer payloads accepted", func(t *testing.T) {
		assert.True(t, CheckAutoApprove("leave", map[string]any{"days": 2}, settings))
		assert.True(t, CheckAutoApprove("leave", map[string]any{"days": int64(1)}, settings))
	})
}

func TestCanActOnRequest(t *testing.T) {
	req := pendingRequest("req-1", "emp-1",
		pendingStep("mgr-1", "Supervisor", 0),
		pendingStep("mgr-2", "Manager", 1),
	)

	assert.True(t, CanActOnRequest("mgr-1", req, ""))
	assert.True(t, CanActOnRequest("del-1", req, "mgr-1"))
	assert.False(t, CanActOnRequest("mgr-2", req, ""))
	assert.False(t, CanActOnRequest("emp-1", req, ""))

	exhausted := pendingRequest("req-2", "emp-1")
	assert.False(t, CanActOnRequest("mgr-1", exhausted, ""))
}
