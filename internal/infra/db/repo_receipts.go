package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"trustpack/internal/domain"

	"gorm.io/gorm"
)

type ConsentReceiptRepository struct {
	db *gorm.DB
}

func NewConsentReceiptRepository(db *gorm.DB) *ConsentReceiptRepository {
	return &ConsentReceiptRepository{db: db}
}

func (r *ConsentReceiptRepository) Save(ctx context.Context, receipt domain.ConsentReceipt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := receiptToModel(receipt)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update rewrites the mutable tail of a stored receipt: its log entry
// attachment and verification state. Hash, salt and signature are immutable
// and deliberately not touched here.
func (r *ConsentReceiptRepository) Update(ctx context.Context, receipt domain.ConsentReceipt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	logEntryJSON, err := marshalLogEntry(receipt.TransparencyLogEntry)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&ConsentReceiptModel{}).
		Where("id = ?", receipt.ID).
		Updates(map[string]any{
			"log_entry":  logEntryJSON,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConsentReceiptRepository) GetByID(ctx context.Context, id string) (*domain.ConsentReceipt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ConsentReceiptModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	receipt, err := receiptFromModel(model)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ConsentReceiptRepository) ListByRP(ctx context.Context, rpIdentifier string) ([]domain.ConsentReceipt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("rp_identifier = ?", rpIdentifier).
		Order("created_at DESC")
	var models []ConsentReceiptModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ConsentReceipt, 0, len(models))
	for _, model := range models {
		receipt, err := receiptFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, receipt)
	}
	return out, nil
}

func receiptToModel(receipt domain.ConsentReceipt) (ConsentReceiptModel, error) {
	predicates := make([]string, 0, len(receipt.Predicates))
	for _, p := range receipt.Predicates {
		predicates = append(predicates, p.Identifier())
	}
	predicatesJSON, err := json.Marshal(predicates)
	if err != nil {
		return ConsentReceiptModel{}, err
	}
	consentJSON, err := json.Marshal(consentRecord{
		ExplicitConsent:              receipt.UserConsent.ExplicitConsent,
		DataMinimizationAcknowledged: receipt.UserConsent.DataMinimizationAcknowledged,
		RetentionPeriodUnderstood:    receipt.UserConsent.RetentionPeriodUnderstood,
		RevocationRightsUnderstood:   receipt.UserConsent.RevocationRightsUnderstood,
		RetentionPeriodDays:          receipt.UserConsent.RetentionPeriodDays,
	})
	if err != nil {
		return ConsentReceiptModel{}, err
	}
	logEntryJSON, err := marshalLogEntry(receipt.TransparencyLogEntry)
	if err != nil {
		return ConsentReceiptModel{}, err
	}

	now := time.Now().UTC()
	return ConsentReceiptModel{
		ID:            receipt.ID,
		Timestamp:     receipt.Timestamp,
		Purpose:       receipt.Purpose,
		Predicates:    predicatesJSON,
		RPIdentifier:  receipt.RPIdentifier,
		RPDisplayName: receipt.RPDisplayName,
		UserConsent:   consentJSON,
		CredentialID:  receipt.CredentialID,
		ReceiptHash:   receipt.ReceiptHash,
		Signature:     copyBytes(receipt.Signature),
		Salt:          receipt.Salt,
		LogEntry:      logEntryJSON,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func receiptFromModel(model ConsentReceiptModel) (domain.ConsentReceipt, error) {
	var predicates []string
	if err := json.Unmarshal(model.Predicates, &predicates); err != nil {
		return domain.ConsentReceipt{}, err
	}
	var consent consentRecord
	if err := json.Unmarshal(model.UserConsent, &consent); err != nil {
		return domain.ConsentReceipt{}, err
	}

	receipt := domain.ConsentReceipt{
		ID:            model.ID,
		Timestamp:     model.Timestamp,
		Purpose:       model.Purpose,
		Predicates:    domain.ParsePredicates(predicates),
		RPIdentifier:  model.RPIdentifier,
		RPDisplayName: model.RPDisplayName,
		UserConsent: domain.ConsentDetails{
			ExplicitConsent:              consent.ExplicitConsent,
			DataMinimizationAcknowledged: consent.DataMinimizationAcknowledged,
			RetentionPeriodUnderstood:    consent.RetentionPeriodUnderstood,
			RevocationRightsUnderstood:   consent.RevocationRightsUnderstood,
			RetentionPeriodDays:          consent.RetentionPeriodDays,
		},
		CredentialID: model.CredentialID,
		ReceiptHash:  model.ReceiptHash,
		Signature:    copyBytes(model.Signature),
		Salt:         model.Salt,
	}
	if len(model.LogEntry) > 0 {
		var record logEntryRecord
		if err := json.Unmarshal(model.LogEntry, &record); err != nil {
			return domain.ConsentReceipt{}, err
		}
		receipt.TransparencyLogEntry = record.toDomain()
	}
	return receipt, nil
}

func marshalLogEntry(entry *domain.TransparencyLogEntry) ([]byte, error) {
	if entry == nil {
		return nil, nil
	}
	return json.Marshal(logEntryRecordFrom(entry))
}

type consentRecord struct {
	ExplicitConsent              bool `json:"explicit_consent"`
	DataMinimizationAcknowledged bool `json:"data_minimization_acknowledged"`
	RetentionPeriodUnderstood    bool `json:"retention_period_understood"`
	RevocationRightsUnderstood   bool `json:"revocation_rights_understood"`
	RetentionPeriodDays          int  `json:"retention_period_days"`
}

type logEntryRecord struct {
	LogID         string     `json:"log_id"`
	LogIndex      int64      `json:"log_index"`
	SCTTimestamp  time.Time  `json:"sct_timestamp"`
	SCTSignature  []byte     `json:"sct_signature"`
	AnchoredAt    time.Time  `json:"anchored_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	IsVerified    bool       `json:"is_verified"`
}

func logEntryRecordFrom(entry *domain.TransparencyLogEntry) logEntryRecord {
	return logEntryRecord{
		LogID:        entry.LogID,
		LogIndex:     entry.LogIndex,
		SCTTimestamp: entry.SCT.Timestamp,
		SCTSignature: copyBytes(entry.SCT.Signature),
		AnchoredAt:   entry.AnchoredAt,
		VerifiedAt:   entry.VerifiedAt,
		IsVerified:   entry.IsVerified,
	}
}

func (r logEntryRecord) toDomain() *domain.TransparencyLogEntry {
	return &domain.TransparencyLogEntry{
		LogID:    r.LogID,
		LogIndex: r.LogIndex,
		SCT: domain.SCT{
			LogID:     r.LogID,
			Timestamp: r.SCTTimestamp,
			Signature: copyBytes(r.SCTSignature),
		},
		AnchoredAt: r.AnchoredAt,
		VerifiedAt: r.VerifiedAt,
		IsVerified: r.IsVerified,
	}
}
