package db

import (
	"bytes"
	"context"
	"errors"
	"time"

	"trustpack/internal/domain"

	"gorm.io/gorm"
)

type LogRepository struct {
	db *gorm.DB
}

func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// AppendEntry commits a submission under the next free index. The leaf hash
// depends on the assigned index and timestamp, so the caller supplies
// computeLeaf and it runs inside the transaction. Resubmitting an existing
// receipt hash returns the original row with created=false.
func (r *LogRepository) AppendEntry(ctx context.Context, logID string, sub domain.LogSubmission, now time.Time, computeLeaf func(domain.LogEntry) ([]byte, error)) (domain.LogEntry, bool, error) {
	if r.db == nil {
		return domain.LogEntry{}, false, errDBUnavailable
	}

	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return domain.LogEntry{}, false, err
	}

	var existing LogEntryModel
	err := tx.Where("log_id = ? AND receipt_hash = ?", logID, sub.ReceiptHash).First(&existing).Error
	if err == nil {
		_ = tx.Rollback()
		return entryFromModel(existing), false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		_ = tx.Rollback()
		return domain.LogEntry{}, false, err
	}

	var maxIndex int64
	if err := tx.Model(&LogEntryModel{}).
		Where("log_id = ?", logID).
		Select("COALESCE(MAX(leaf_index), -1)").
		Scan(&maxIndex).Error; err != nil {
		_ = tx.Rollback()
		return domain.LogEntry{}, false, err
	}

	entry := domain.LogEntry{
		Index:        maxIndex + 1,
		Timestamp:    now.UTC(),
		ReceiptHash:  sub.ReceiptHash,
		SaltHash:     sub.SaltHash,
		PolicyID:     sub.PolicyID,
		Jurisdiction: sub.Jurisdiction,
	}
	leafHash, err := computeLeaf(entry)
	if err != nil {
		_ = tx.Rollback()
		return domain.LogEntry{}, false, err
	}

	model := LogEntryModel{
		LogID:        logID,
		LeafIndex:    entry.Index,
		Timestamp:    entry.Timestamp,
		ReceiptHash:  entry.ReceiptHash,
		SaltHash:     entry.SaltHash,
		PolicyID:     stringPtrIfNotEmpty(entry.PolicyID),
		Jurisdiction: stringPtrIfNotEmpty(entry.Jurisdiction),
		LeafHash:     copyBytes(leafHash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := tx.Create(&model).Error; err != nil {
		_ = tx.Rollback()
		return domain.LogEntry{}, false, err
	}
	if err := tx.Commit().Error; err != nil {
		return domain.LogEntry{}, false, err
	}
	return entry, true, nil
}

func (r *LogRepository) StoreSCT(ctx context.Context, logID string, receiptHash string, signature []byte) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&LogEntryModel{}).
		Where("log_id = ? AND receipt_hash = ?", logID, receiptHash).
		Update("sct_signature", copyBytes(signature)).Error
}

func (r *LogRepository) GetEntryByReceiptHash(ctx context.Context, logID string, receiptHash string) (domain.LogEntry, []byte, error) {
	if r.db == nil {
		return domain.LogEntry{}, nil, errDBUnavailable
	}
	var model LogEntryModel
	err := r.db.WithContext(ctx).
		Where("log_id = ? AND receipt_hash = ?", logID, receiptHash).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LogEntry{}, nil, domain.ErrNotFound
		}
		return domain.LogEntry{}, nil, err
	}
	return entryFromModel(model), copyBytes(model.SCTSignature), nil
}

// ListEntries returns committed entries with leaf_index in [start, end].
func (r *LogRepository) ListEntries(ctx context.Context, logID string, start, end int64) ([]domain.LogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []LogEntryModel
	err := r.db.WithContext(ctx).
		Where("log_id = ? AND leaf_index >= ? AND leaf_index <= ?", logID, start, end).
		Order("leaf_index ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.LogEntry, 0, len(models))
	for _, model := range models {
		out = append(out, entryFromModel(model))
	}
	return out, nil
}

// ListLeafHashes returns leaf hashes for indices below upTo, in index order.
// upTo <= 0 means all of them.
func (r *LogRepository) ListLeafHashes(ctx context.Context, logID string, upTo int64) ([][]byte, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("leaf_index ASC")
	if upTo > 0 {
		query = query.Where("leaf_index < ?", upTo)
	}

	var models []LogEntryModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(models))
	for _, model := range models {
		out = append(out, copyBytes(model.LeafHash))
	}
	return out, nil
}

func (r *LogRepository) CountEntries(ctx context.Context, logID string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&LogEntryModel{}).
		Where("log_id = ?", logID).
		Count(&count).Error
	return count, err
}

// StoreSTH persists a tree head. A concurrent writer may have stored a head
// at the same size first; that is fine as long as the roots agree. If they
// disagree the log has equivocated and the error is fatal.
func (r *LogRepository) StoreSTH(ctx context.Context, sth domain.TreeHead) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := TreeHeadModel{
		LogID:     sth.LogID,
		TreeSize:  sth.TreeSize,
		RootHash:  copyBytes(sth.RootHash),
		IssuedAt:  sth.IssuedAt,
		Signature: copyBytes(sth.Signature),
	}
	if model.Signature == nil {
		model.Signature = []byte{}
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	stored, lookupErr := r.GetSTHBySize(ctx, sth.LogID, sth.TreeSize)
	if lookupErr != nil {
		return err
	}
	if !bytes.Equal(stored.RootHash, sth.RootHash) {
		return domain.ErrEquivocation
	}
	return nil
}

func (r *LogRepository) GetLatestSTH(ctx context.Context, logID string) (*domain.TreeHead, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TreeHeadModel
	err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("tree_size DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	sth := treeHeadFromModel(model)
	return &sth, nil
}

func (r *LogRepository) GetSTHBySize(ctx context.Context, logID string, treeSize int64) (*domain.TreeHead, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TreeHeadModel
	err := r.db.WithContext(ctx).
		Where("log_id = ? AND tree_size = ?", logID, treeSize).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	sth := treeHeadFromModel(model)
	return &sth, nil
}

func entryFromModel(model LogEntryModel) domain.LogEntry {
	return domain.LogEntry{
		Index:        model.LeafIndex,
		Timestamp:    model.Timestamp,
		ReceiptHash:  model.ReceiptHash,
		SaltHash:     model.SaltHash,
		PolicyID:     stringValue(model.PolicyID),
		Jurisdiction: stringValue(model.Jurisdiction),
	}
}

func treeHeadFromModel(model TreeHeadModel) domain.TreeHead {
	return domain.TreeHead{
		LogID:     model.LogID,
		TreeSize:  model.TreeSize,
		RootHash:  copyBytes(model.RootHash),
		IssuedAt:  model.IssuedAt,
		Signature: copyBytes(model.Signature),
	}
}
