package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
	"github.com/mesworks/be-hr-approvals/internal/repository"
)

// DirectoryClient reads the employee directory service. The directory is the
// single source of truth for the org hierarchy; this service only ever reads
// it, and only at chain-build time.
type DirectoryClient struct {
	baseURL string
	http    *http.Client
}

// NewDirectoryClient creates a directory client for the given base URL.
func NewDirectoryClient(baseURL string) *DirectoryClient {
	return &DirectoryClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetByID fetches a single employee record.
func (c *DirectoryClient) GetByID(ctx context.Context, employeeID string) (*repository.EmployeeInfo, error) {
	var emp repository.EmployeeInfo
	path := fmt.Sprintf("/api/v1/employees/get?id=%s", employeeID)
	if err := c.get(ctx, path, &emp); err != nil {
		return nil, err
	}
	if emp.EmployeeID == "" {
		return nil, errors.NotFound("employee", employeeID)
	}
	return &emp, nil
}

// List fetches all employee records.
func (c *DirectoryClient) List(ctx context.Context) ([]*repository.EmployeeInfo, error) {
	var resp struct {
		Employees []*repository.EmployeeInfo `json:"employees"`
	}
	if err := c.get(ctx, "/api/v1/employees", &resp); err != nil {
		return nil, err
	}
	return resp.Employees, nil
}

func (c *DirectoryClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build directory request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "directory service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.New(errors.ErrCodeNotFound, "employee not found")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("directory service returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to decode directory response")
	}
	return nil
}
