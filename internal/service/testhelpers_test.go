package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// In-memory fakes backing the service tests.

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// memRequestStore keeps requests in a map and enforces the same optimistic
// version check the Postgres repository does.
type memRequestStore struct {
	requests map[string]*repository.ApprovalRequest
	failOn   map[string]error // request id -> error to return from Update
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{
		requests: make(map[string]*repository.ApprovalRequest),
		failOn:   make(map[string]error),
	}
}

func (m *memRequestStore) Create(_ context.Context, req *repository.ApprovalRequest) error {
	req.Version = 1
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.UpdatedAt = req.CreatedAt
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *memRequestStore) GetByID(_ context.Context, id string) (*repository.ApprovalRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, errors.NotFound("approval request", id)
	}
	return cloneRequest(req), nil
}

func (m *memRequestStore) Update(_ context.Context, req *repository.ApprovalRequest) error {
	if err, ok := m.failOn[req.ID]; ok {
		return err
	}
	stored, ok := m.requests[req.ID]
	if !ok {
		return errors.NotFound("approval request", req.ID)
	}
	if stored.Version != req.Version {
		return errors.Conflict(fmt.Sprintf("request %s was modified concurrently", req.ID))
	}
	req.Version++
	req.UpdatedAt = time.Now().UTC()
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *memRequestStore) List(_ context.Context, filter repository.RequestFilter) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for _, req := range m.requests {
		if filter.EmployeeID != nil && req.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.RequestType != nil && req.RequestType != *filter.RequestType {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRequestStore) ListStale(_ context.Context, cutoff time.Time) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for _, req := range m.requests {
		if req.Status != repository.StatusPending && req.Status != repository.StatusInProgress {
			continue
		}
		if req.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *memRequestStore) ListPendingForApprover(_ context.Context, employeeID string) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for _, req := range m.requests {
		if req.Status != repository.StatusPending && req.Status != repository.StatusInProgress {
			continue
		}
		step := req.CurrentChainStep()
		if step == nil {
			continue
		}
		if step.ApproverEmployeeID == employeeID ||
			(step.DelegatedTo != nil && *step.DelegatedTo == employeeID) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// put seeds a request directly, bypassing Create.
func (m *memRequestStore) put(req *repository.ApprovalRequest) {
	if req.Version == 0 {
		req.Version = 1
	}
	m.requests[req.ID] = cloneRequest(req)
}

func cloneRequest(req *repository.ApprovalRequest) *repository.ApprovalRequest {
	c := *req
	c.Chain = append([]repository.ChainStep(nil), req.Chain...)
	c.History = append([]repository.HistoryEntry(nil), req.History...)
	return &c
}

type memDelegationStore struct {
	delegations []*repository.Delegation
}

func (m *memDelegationStore) Create(_ context.Context, d *repository.Delegation) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	c := *d
	m.delegations = append(m.delegations, &c)
	return nil
}

func (m *memDelegationStore) Deactivate(_ context.Context, id string) error {
	for _, d := range m.delegations {
		if d.ID == id {
			d.IsActive = false
			return nil
		}
	}
	return errors.NotFound("delegation", id)
}

func (m *memDelegationStore) ListActiveByFrom(_ context.Context, from string) ([]*repository.Delegation, error) {
	var out []*repository.Delegation
	for _, d := range m.delegations {
		if d.FromEmployeeID == from && d.IsActive {
			out = append(out, d)
		}
	}
	// Most recently created first, matching the repository ordering.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memDelegationStore) ListByFrom(_ context.Context, from string) ([]*repository.Delegation, error) {
	var out []*repository.Delegation
	for _, d := range m.delegations {
		if d.FromEmployeeID == from {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDelegationStore) ListByTo(_ context.Context, to string) ([]*repository.Delegation, error) {
	var out []*repository.Delegation
	for _, d := range m.delegations {
		if d.ToEmployeeID == to {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDelegationStore) ListAll(_ context.Context) ([]*repository.Delegation, error) {
	return append([]*repository.Delegation(nil), m.delegations...), nil
}

type memSettingsStore struct {
	settings *repository.ApprovalSettings
}

func (m *memSettingsStore) Get(_ context.Context) (*repository.ApprovalSettings, error) {
	if m.settings == nil {
		return &repository.ApprovalSettings{
			MaxApprovalLevels: 3,
			AllowDelegation:   true,
		}, nil
	}
	c := *m.settings
	return &c, nil
}

func (m *memSettingsStore) Put(_ context.Context, s *repository.ApprovalSettings) error {
	c := *s
	m.settings = &c
	return nil
}

type memAuditSink struct {
	entries   []*repository.AuditLogEntry
	appendErr error
}

func (m *memAuditSink) Append(_ context.Context, entry *repository.AuditLogEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	c := *entry
	c.Timestamp = time.Now().UTC()
	m.entries = append(m.entries, &c)
	return nil
}

func (m *memAuditSink) GetByRequestID(_ context.Context, requestID string) ([]*repository.AuditLogEntry, error) {
	var out []*repository.AuditLogEntry
	for _, e := range m.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memDirectory struct {
	employees []*repository.EmployeeInfo
}

func (m *memDirectory) GetByID(_ context.Context, id string) (*repository.EmployeeInfo, error) {
	for _, e := range m.employees {
		if e.EmployeeID == id {
			return e, nil
		}
	}
	return nil, errors.NotFound("employee", id)
}

func (m *memDirectory) List(_ context.Context) ([]*repository.EmployeeInfo, error) {
	return m.employees, nil
}

type capturedEvent struct {
	EventType  string
	RequestID  string
	ActorID    string
	Recipients []string
	Payload    map[string]any
}

type memPublisher struct {
	events []capturedEvent
}

func (m *memPublisher) PublishRequestEvent(_ context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]any) {
	m.events = append(m.events, capturedEvent{
		EventType:  eventType,
		RequestID:  req.ID,
		ActorID:    actorID,
		Recipients: recipients,
		Payload:    payload,
	})
}

func (m *memPublisher) eventTypes() []string {
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

// ── fixture builders ──────────────────────────────────────────────────────────

func strPtr(s string) *string { return &s }

func employee(id, name string, managerID *string, level int) *repository.EmployeeInfo {
	return &repository.EmployeeInfo{
		EmployeeID:     id,
		EmployeeName:   name,
		ManagerID:      managerID,
		JobLevel:       level,
		JobTitle:       name + " title",
		DepartmentID:   "dept-1",
		DepartmentName: "Production",
	}
}

// testHierarchy is the worker -> supervisor -> manager -> director line used
// across the tests, plus an HR officer outside the line.
func testHierarchy() []*repository.EmployeeInfo {
	return []*repository.EmployeeInfo{
		employee("emp-1", "Worker", strPtr("mgr-1"), 1),
		employee("mgr-1", "Supervisor", strPtr("mgr-2"), 3),
		employee("mgr-2", "Manager", strPtr("mgr-3"), 5),
		employee("mgr-3", "Director", nil, 7),
		employee("hr-1", "HR Officer", strPtr("mgr-3"), 4),
	}
}

func pendingStep(approverID, approverName string, level int) repository.ChainStep {
	return repository.ChainStep{
		ApproverEmployeeID: approverID,
		ApproverName:       approverName,
		Level:              level,
		Status:             repository.StepPending,
	}
}

func pendingRequest(id, employeeID string, steps ...repository.ChainStep) *repository.ApprovalRequest {
	now := time.Now().UTC()
	return &repository.ApprovalRequest{
		ID:          id,
		EmployeeID:  employeeID,
		RequestType: "leave",
		Status:      repository.StatusPending,
		CurrentStep: 0,
		Chain:       steps,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

func callerWith(id string, perms ...string) Caller {
	p := make(map[string]bool, len(perms))
	for _, perm := range perms {
		p[perm] = true
	}
	return Caller{EmployeeID: id, EmployeeName: id + " name", Permissions: p}
}
