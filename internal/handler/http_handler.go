package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
	"github.com/mesworks/be-hr-approvals/internal/repository"
	"github.com/mesworks/be-hr-approvals/internal/service"
)

// HTTPHandler exposes the approval workflow over HTTP. Authentication happens
// upstream: the gateway injects the caller identity and permission flags as
// headers, and this handler only authorizes.
type HTTPHandler struct {
	requests    *service.RequestService
	delegations *service.DelegationService
	escalations *service.EscalationService
	settings    service.SettingsStore
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	requests *service.RequestService,
	delegations *service.DelegationService,
	escalations *service.EscalationService,
	settings service.SettingsStore,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:    requests,
		delegations: delegations,
		escalations: escalations,
		settings:    settings,
		log:         log,
	}
}

// callerFromRequest builds the caller context from gateway-injected headers.
// X-Permissions is a comma-separated list of granted capability flags.
func callerFromRequest(r *http.Request) service.Caller {
	permissions := map[string]bool{}
	for _, p := range strings.Split(r.Header.Get("X-Permissions"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			permissions[p] = true
		}
	}
	return service.Caller{
		EmployeeID:   r.Header.Get("X-Employee-Id"),
		EmployeeName: r.Header.Get("X-Employee-Name"),
		Permissions:  permissions,
	}
}

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateRequest handles POST /api/v1/requests.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerFromRequest(r)
	if caller.EmployeeID == "" {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing caller identity"))
		return
	}

	var input service.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, warnings, err := h.requests.CreateRequest(r.Context(), caller, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"request":  req,
		"warnings": warnings,
	})
}

// GetRequest handles GET /api/v1/requests/get?id=.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	req, err := h.requests.GetRequest(r.Context(), callerFromRequest(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListRequests handles GET /api/v1/requests.
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := repository.RequestFilter{}
	if v := r.URL.Query().Get("employee_id"); v != "" {
		filter.EmployeeID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}
	if v := r.URL.Query().Get("request_type"); v != "" {
		filter.RequestType = &v
	}

	list, err := h.requests.ListRequests(r.Context(), callerFromRequest(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list, "total": len(list)})
}

type actionBody struct {
	ID    string `json:"id"`
	Notes string `json:"notes"`
}

// ApproveRequest handles POST /api/v1/requests/approve.
func (h *HTTPHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.requests.Approve)
}

// RejectRequest handles POST /api/v1/requests/reject.
func (h *HTTPHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.requests.Reject)
}

// CancelRequest handles POST /api/v1/requests/cancel.
func (h *HTTPHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.requests.Cancel)
}

func (h *HTTPHandler) handleAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, caller service.Caller, id, notes string) (*repository.ApprovalRequest, error),
) {
	var body actionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if body.ID == "" {
		writeError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	req, err := action(r.Context(), callerFromRequest(r), body.ID, body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// OverrideRequest handles POST /api/v1/requests/override.
func (h *HTTPHandler) OverrideRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID       string `json:"id"`
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.AdminOverride(r.Context(), callerFromRequest(r), body.ID, body.Decision, body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// PendingApprovals handles GET /api/v1/requests/pending.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	list, err := h.requests.GetPendingApprovals(r.Context(), callerFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list, "total": len(list)})
}

// AuditTrail handles GET /api/v1/requests/audit?id=.
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	entries, err := h.requests.GetAuditTrail(r.Context(), callerFromRequest(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

// EscalatedRequests handles GET /api/v1/requests/escalated: the admin
// intervention queue.
func (h *HTTPHandler) EscalatedRequests(w http.ResponseWriter, r *http.Request) {
	caller := callerFromRequest(r)
	if !service.CanViewAllRequests(caller.Permissions) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "insufficient permissions"))
		return
	}

	list, err := h.escalations.GetEscalatedRequests(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list, "total": len(list)})
}

// ── Delegations ───────────────────────────────────────────────────────────────

// CreateDelegation handles POST /api/v1/delegations.
func (h *HTTPHandler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	caller := callerFromRequest(r)
	if caller.EmployeeID == "" {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing caller identity"))
		return
	}

	var input service.CreateDelegationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	d, err := h.delegations.Create(r.Context(), caller, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDelegations handles GET /api/v1/delegations.
// Query params: from=, to=, or all=true (HR/admin only).
func (h *HTTPHandler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	caller := callerFromRequest(r)
	ctx := r.Context()

	var (
		list []*repository.Delegation
		err  error
	)
	switch {
	case r.URL.Query().Get("all") == "true":
		list, err = h.delegations.ListAll(ctx, caller)
	case r.URL.Query().Get("to") != "":
		list, err = h.delegations.ListByTo(ctx, r.URL.Query().Get("to"))
	case r.URL.Query().Get("from") != "":
		list, err = h.delegations.ListByFrom(ctx, r.URL.Query().Get("from"))
	default:
		list, err = h.delegations.ListByFrom(ctx, caller.EmployeeID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delegations": list, "total": len(list)})
}

// DeactivateDelegation handles POST /api/v1/delegations/deactivate.
func (h *HTTPHandler) DeactivateDelegation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeError(w, errors.InvalidInput("id", "delegation id is required"))
		return
	}

	if err := h.delegations.Deactivate(r.Context(), callerFromRequest(r), body.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Settings ──────────────────────────────────────────────────────────────────

// GetSettings handles GET /api/v1/settings.
func (h *HTTPHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/v1/settings. HR/admin only.
func (h *HTTPHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	caller := callerFromRequest(r)
	if !service.CanViewAllRequests(caller.Permissions) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "insufficient permissions to change settings"))
		return
	}

	var settings repository.ApprovalSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if settings.MaxApprovalLevels < 1 {
		writeError(w, errors.InvalidInput("maxApprovalLevels", "must be at least 1"))
		return
	}
	if settings.EscalationDays < 0 {
		writeError(w, errors.InvalidInput("escalationDays", "must be zero or positive"))
		return
	}

	if err := h.settings.Put(r.Context(), &settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an application error onto an HTTP error response.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatus(err), map[string]string{
		"code":  errors.Code(err),
		"error": err.Error(),
	})
}
