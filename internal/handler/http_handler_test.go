package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/service"
)

func TestCallerFromRequest(t *testing.T) {
	t.Run("parses identity and permission headers", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
		r.Header.Set("X-Employee-Id", "emp-1")
		r.Header.Set("X-Employee-Name", "Worker One")
		r.Header.Set("X-Permissions", "approval.view, approval.manage")

		caller := callerFromRequest(r)
		assert.Equal(t, "emp-1", caller.EmployeeID)
		assert.Equal(t, "Worker One", caller.EmployeeName)
		assert.True(t, caller.Permissions[service.PermView])
		assert.True(t, caller.Permissions[service.PermManage])
		assert.False(t, caller.Permissions[service.PermOverride])
		assert.Equal(t, service.RoleHR, caller.Role())
	})

	t.Run("missing headers yield an anonymous employee", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
		caller := callerFromRequest(r)
		assert.Empty(t, caller.EmployeeID)
		assert.Empty(t, caller.Permissions)
		assert.Equal(t, service.RoleEmployee, caller.Role())
	})

	t.Run("empty permission entries ignored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
		r.Header.Set("X-Permissions", " , approval.override,, ")
		caller := callerFromRequest(r)
		assert.Len(t, caller.Permissions, 1)
		assert.Equal(t, service.RoleAdmin, caller.Role())
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", errors.NotFound("request", "req-1"), http.StatusNotFound, errors.ErrCodeNotFound},
		{"forbidden", errors.New(errors.ErrCodeForbidden, "no"), http.StatusForbidden, errors.ErrCodeForbidden},
		{"conflict", errors.Conflict("stale"), http.StatusConflict, errors.ErrCodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}
