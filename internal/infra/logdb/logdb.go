// Package logdb is the durable transparency log engine. Index assignment
// and dedupe happen inside the repository transaction; tree heads are built
// on demand and persisted, so a restart never loses a commitment.
package logdb

import (
	"context"
	"errors"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/crypto"
	"trustpack/internal/infra/merkle"
)

// Repository is the slice of the persistence layer the engine needs.
// *db.LogRepository implements it; tests supply an in-memory fake.
type Repository interface {
	AppendEntry(ctx context.Context, logID string, sub domain.LogSubmission, now time.Time, computeLeaf func(domain.LogEntry) ([]byte, error)) (domain.LogEntry, bool, error)
	StoreSCT(ctx context.Context, logID string, receiptHash string, signature []byte) error
	GetEntryByReceiptHash(ctx context.Context, logID string, receiptHash string) (domain.LogEntry, []byte, error)
	ListEntries(ctx context.Context, logID string, start, end int64) ([]domain.LogEntry, error)
	ListLeafHashes(ctx context.Context, logID string, upTo int64) ([][]byte, error)
	CountEntries(ctx context.Context, logID string) (int64, error)
	StoreSTH(ctx context.Context, sth domain.TreeHead) error
	GetLatestSTH(ctx context.Context, logID string) (*domain.TreeHead, error)
	GetSTHBySize(ctx context.Context, logID string, treeSize int64) (*domain.TreeHead, error)
}

type Log struct {
	repo          Repository
	logID         string
	hasher        *crypto.Service
	clock         func() time.Time
	signSTH       func(domain.STH) ([]byte, error)
	signSCT       func(receiptHash string, timestamp time.Time) ([]byte, error)
	anchor        domain.AnchorService
	anchorTimeout time.Duration
}

func New(repo Repository, logID string) *Log {
	return NewWithSigners(repo, logID, nil, nil)
}

func NewWithSigners(repo Repository, logID string, signSTH func(domain.STH) ([]byte, error), signSCT func(string, time.Time) ([]byte, error)) *Log {
	return NewWithSignersClockAndAnchor(repo, logID, signSTH, signSCT, nil, nil, 0)
}

func NewWithSignersClockAndAnchor(repo Repository, logID string, signSTH func(domain.STH) ([]byte, error), signSCT func(string, time.Time) ([]byte, error), clock func() time.Time, anchorSvc domain.AnchorService, anchorTimeout time.Duration) *Log {
	if clock == nil {
		clock = time.Now
	}
	return &Log{
		repo:          repo,
		logID:         logID,
		hasher:        crypto.NewService(),
		clock:         clock,
		signSTH:       signSTH,
		signSCT:       signSCT,
		anchor:        anchorSvc,
		anchorTimeout: anchorTimeout,
	}
}

func (l *Log) LogID() string {
	return l.logID
}

func (l *Log) AppendEntry(ctx context.Context, sub domain.LogSubmission) (domain.LogEntry, domain.SCT, domain.STH, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	if _, err := domain.ParseDigest(sub.ReceiptHash); err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	if _, err := domain.ParseDigest(sub.SaltHash); err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	if l.repo == nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, errors.New("log repository required")
	}

	entry, created, err := l.repo.AppendEntry(ctx, l.logID, sub, l.clock(), l.hasher.ComputeLeafHash)
	if err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}

	sct := domain.SCT{LogID: l.logID, Timestamp: entry.Timestamp}
	if created {
		if l.signSCT != nil {
			sig, err := l.signSCT(sub.ReceiptHash, entry.Timestamp)
			if err != nil {
				return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
			}
			sct.Signature = sig
			if err := l.repo.StoreSCT(ctx, l.logID, sub.ReceiptHash, sig); err != nil {
				return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
			}
		}
	} else {
		_, storedSig, err := l.repo.GetEntryByReceiptHash(ctx, l.logID, sub.ReceiptHash)
		if err != nil {
			return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
		}
		sct.Signature = storedSig
	}

	sth, err := l.sthForSize(ctx, entry.Index+1)
	if err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}

	if created {
		l.anchorBestEffort(ctx, *sth)
	}
	return entry, sct, *sth, nil
}

func (l *Log) GetEntries(ctx context.Context, start, end int64) ([]domain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if start < 0 || end < start {
		return nil, merkle.ErrInvalidIndex
	}
	if l.repo == nil {
		return nil, errors.New("log repository required")
	}

	size, err := l.repo.CountEntries(ctx, l.logID)
	if err != nil {
		return nil, err
	}
	if start >= size {
		return nil, domain.ErrNotFound
	}
	if end >= size {
		end = size - 1
	}
	return l.repo.ListEntries(ctx, l.logID, start, end)
}

func (l *Log) GetInclusionProofByHash(ctx context.Context, receiptHash string, treeSize int64) (domain.InclusionProof, error) {
	if err := ctx.Err(); err != nil {
		return domain.InclusionProof{}, err
	}
	if l.repo == nil {
		return domain.InclusionProof{}, errors.New("log repository required")
	}

	entry, _, err := l.repo.GetEntryByReceiptHash(ctx, l.logID, receiptHash)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	if treeSize == 0 {
		treeSize, err = l.repo.CountEntries(ctx, l.logID)
		if err != nil {
			return domain.InclusionProof{}, err
		}
	}
	if entry.Index >= treeSize {
		return domain.InclusionProof{}, domain.ErrNotFound
	}

	leaves, err := l.repo.ListLeafHashes(ctx, l.logID, treeSize)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	if int64(len(leaves)) != treeSize {
		return domain.InclusionProof{}, merkle.ErrInvalidSize
	}
	path, err := merkle.InclusionProof(leaves, int(entry.Index))
	if err != nil {
		return domain.InclusionProof{}, err
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	return domain.InclusionProof{
		LogID:     l.logID,
		LeafIndex: entry.Index,
		TreeSize:  treeSize,
		AuditPath: path,
		RootHash:  root,
	}, nil
}

func (l *Log) GetConsistencyProof(ctx context.Context, firstSize, secondSize int64) (domain.ConsistencyProof, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConsistencyProof{}, err
	}
	if firstSize <= 0 || secondSize <= 0 || firstSize > secondSize {
		return domain.ConsistencyProof{}, merkle.ErrInvalidSize
	}
	if l.repo == nil {
		return domain.ConsistencyProof{}, errors.New("log repository required")
	}

	leaves, err := l.repo.ListLeafHashes(ctx, l.logID, secondSize)
	if err != nil {
		return domain.ConsistencyProof{}, err
	}
	if int64(len(leaves)) != secondSize {
		return domain.ConsistencyProof{}, merkle.ErrInvalidSize
	}
	path, err := merkle.ConsistencyProof(leaves, int(firstSize), int(secondSize))
	if err != nil {
		return domain.ConsistencyProof{}, err
	}
	return domain.ConsistencyProof{
		LogID:      l.logID,
		FirstSize:  firstSize,
		SecondSize: secondSize,
		Path:       path,
	}, nil
}

func (l *Log) GetLatestSTH(ctx context.Context) (domain.STH, error) {
	if err := ctx.Err(); err != nil {
		return domain.STH{}, err
	}
	if l.repo == nil {
		return domain.STH{}, errors.New("log repository required")
	}
	sth, err := l.repo.GetLatestSTH(ctx, l.logID)
	if err != nil {
		return domain.STH{}, err
	}
	return *sth, nil
}

func (l *Log) GetSTHBySize(ctx context.Context, treeSize int64) (domain.STH, error) {
	if err := ctx.Err(); err != nil {
		return domain.STH{}, err
	}
	if l.repo == nil {
		return domain.STH{}, errors.New("log repository required")
	}
	sth, err := l.repo.GetSTHBySize(ctx, l.logID, treeSize)
	if err != nil {
		return domain.STH{}, err
	}
	return *sth, nil
}

// sthForSize returns the persisted tree head at treeSize, building and
// storing one if this is the first time the tree reached that size.
func (l *Log) sthForSize(ctx context.Context, treeSize int64) (*domain.STH, error) {
	sth, err := l.repo.GetSTHBySize(ctx, l.logID, treeSize)
	if err == nil {
		return sth, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	leaves, err := l.repo.ListLeafHashes(ctx, l.logID, treeSize)
	if err != nil {
		return nil, err
	}
	if int64(len(leaves)) != treeSize {
		return nil, merkle.ErrInvalidSize
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return nil, err
	}
	built := domain.STH{
		LogID:    l.logID,
		TreeSize: treeSize,
		RootHash: root,
		IssuedAt: l.clock().UTC(),
	}
	if l.signSTH != nil {
		sig, err := l.signSTH(built)
		if err != nil {
			return nil, err
		}
		built.Signature = sig
	}
	if err := l.repo.StoreSTH(ctx, built); err != nil {
		if errors.Is(err, domain.ErrEquivocation) {
			return nil, err
		}
		// A concurrent append stored the head first; use the stored one.
		stored, lookupErr := l.repo.GetSTHBySize(ctx, l.logID, treeSize)
		if lookupErr != nil {
			return nil, err
		}
		return stored, nil
	}
	return &built, nil
}

func (l *Log) anchorBestEffort(ctx context.Context, sth domain.STH) {
	if l.anchor == nil {
		return
	}
	timeout := l.anchorTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	anchorCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, _ = l.anchor.AnchorSTH(anchorCtx, sth)
}
