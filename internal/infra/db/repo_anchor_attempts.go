package db

import (
	"context"
	"errors"
	"time"

	"trustpack/internal/domain"

	"gorm.io/gorm"
)

type AnchorAttemptRepository struct {
	db *gorm.DB
}

func NewAnchorAttemptRepository(db *gorm.DB) *AnchorAttemptRepository {
	return &AnchorAttemptRepository{db: db}
}

func (r *AnchorAttemptRepository) Append(ctx context.Context, attempt domain.AnchorAttempt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if attempt.LogID == "" {
		return errors.New("log_id is required")
	}
	if attempt.Provider == "" {
		return errors.New("provider is required")
	}
	if attempt.Status == "" {
		return errors.New("status is required")
	}

	model := AnchorAttemptModel{
		LogID:       attempt.LogID,
		Provider:    attempt.Provider,
		Status:      attempt.Status,
		ErrorCode:   stringPtrIfNotEmpty(attempt.ErrorCode),
		TreeSize:    attempt.TreeSize,
		PayloadHash: attempt.PayloadHash,
		WitnessRef:  stringPtrIfNotEmpty(attempt.WitnessRef),
		CreatedAt:   time.Now().UTC(),
	}
	if !attempt.CreatedAt.IsZero() {
		model.CreatedAt = attempt.CreatedAt
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AnchorAttemptRepository) ListByLog(ctx context.Context, logID string, limit int) ([]domain.AnchorAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []AnchorAttemptModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, domain.AnchorAttempt{
			LogID:       model.LogID,
			Provider:    model.Provider,
			Status:      model.Status,
			ErrorCode:   stringValue(model.ErrorCode),
			TreeSize:    model.TreeSize,
			PayloadHash: model.PayloadHash,
			WitnessRef:  stringValue(model.WitnessRef),
			CreatedAt:   model.CreatedAt,
		})
	}
	return out, nil
}
