package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"trustpack/internal/domain"

	"gorm.io/gorm"
)

type AuditReportRepository struct {
	db *gorm.DB
}

func NewAuditReportRepository(db *gorm.DB) *AuditReportRepository {
	return &AuditReportRepository{db: db}
}

func (r *AuditReportRepository) Append(ctx context.Context, report domain.AuditReport) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if report.LogID == "" {
		return errors.New("log_id is required")
	}
	if report.Outcome == "" {
		return errors.New("outcome is required")
	}

	id := report.ID
	if id == "" {
		var err error
		id, err = newUUID()
		if err != nil {
			return err
		}
	}
	findingsJSON, err := json.Marshal(report.Findings)
	if err != nil {
		return err
	}

	model := AuditReportModel{
		ID:            id,
		LogID:         report.LogID,
		TreeSize:      report.TreeSize,
		RootHash:      copyBytes(report.RootHash),
		Sampled:       report.Sampled,
		Verified:      report.Verified,
		Failed:        report.Failed,
		ConsistencyOK: report.ConsistencyOK,
		Outcome:       string(report.Outcome),
		Findings:      findingsJSON,
		StartedAt:     report.StartedAt,
		CompletedAt:   report.CompletedAt,
	}
	if model.StartedAt.IsZero() {
		model.StartedAt = time.Now().UTC()
	}
	if model.CompletedAt.IsZero() {
		model.CompletedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AuditReportRepository) ListByLog(ctx context.Context, logID string, limit int) ([]domain.AuditReport, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("completed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []AuditReportModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditReport, 0, len(models))
	for _, model := range models {
		report, err := auditReportFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}

func auditReportFromModel(model AuditReportModel) (domain.AuditReport, error) {
	var findings []string
	if len(model.Findings) > 0 {
		if err := json.Unmarshal(model.Findings, &findings); err != nil {
			return domain.AuditReport{}, err
		}
	}
	return domain.AuditReport{
		ID:            model.ID,
		LogID:         model.LogID,
		TreeSize:      model.TreeSize,
		RootHash:      copyBytes(model.RootHash),
		Sampled:       model.Sampled,
		Verified:      model.Verified,
		Failed:        model.Failed,
		ConsistencyOK: model.ConsistencyOK,
		Outcome:       domain.AuditOutcome(model.Outcome),
		Findings:      findings,
		StartedAt:     model.StartedAt,
		CompletedAt:   model.CompletedAt,
	}, nil
}
