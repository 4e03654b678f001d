package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/mesworks/be-hr-approvals/internal/platform/database"
	"github.com/mesworks/be-hr-approvals/internal/platform/errors"
)

// SettingsRepository reads and writes the singleton approval settings row.
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// defaultSettings is returned before the settings row has ever been written.
func defaultSettings() *ApprovalSettings {
	return &ApprovalSettings{
		MaxApprovalLevels:  3,
		HRAlwaysFinalLevel: false,
		EscalationDays:     0,
		AllowDelegation:    true,
	}
}

// Get returns the current settings, or defaults when none are stored yet.
func (r *SettingsRepository) Get(ctx context.Context) (*ApprovalSettings, error) {
	query := `
		SELECT max_approval_levels, hr_always_final_level, hr_employee_id,
		       escalation_days, auto_approve_thresholds, allow_delegation,
		       updated_at
		FROM approval_settings
		WHERE id = 1
	`

	s := &ApprovalSettings{}
	var thresholdsJSON []byte
	err := r.db.QueryRow(ctx, query).Scan(
		&s.MaxApprovalLevels,
		&s.HRAlwaysFinalLevel,
		&s.HREmployeeID,
		&s.EscalationDays,
		&thresholdsJSON,
		&s.AllowDelegation,
		&s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return defaultSettings(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval settings")
	}

	if thresholdsJSON != nil {
		if err := json.Unmarshal(thresholdsJSON, &s.AutoApproveThresholds); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal auto-approve thresholds")
		}
	}
	return s, nil
}

// Put upserts the singleton settings row.
func (r *SettingsRepository) Put(ctx context.Context, s *ApprovalSettings) error {
	thresholdsJSON, err := json.Marshal(s.AutoApproveThresholds)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal auto-approve thresholds")
	}

	query := `
		INSERT INTO approval_settings
		    (id, max_approval_levels, hr_always_final_level, hr_employee_id,
		     escalation_days, auto_approve_thresholds, allow_delegation, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET max_approval_levels     = EXCLUDED.max_approval_levels,
		    hr_always_final_level   = EXCLUDED.hr_always_final_level,
		    hr_employee_id          = EXCLUDED.hr_employee_id,
		    escalation_days         = EXCLUDED.escalation_days,
		    auto_approve_thresholds = EXCLUDED.auto_approve_thresholds,
		    allow_delegation        = EXCLUDED.allow_delegation,
		    updated_at              = NOW()
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		s.MaxApprovalLevels,
		s.HRAlwaysFinalLevel,
		s.HREmployeeID,
		s.EscalationDays,
		thresholdsJSON,
		s.AllowDelegation,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to save approval settings")
	}
	return nil
}
