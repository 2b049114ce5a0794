// Package logmem holds the whole transparency log in memory. It is the
// reference engine: single process, mutex-serialized appends, synchronous
// merge (every accepted submission is in the tree before its SCT is
// returned). The durable engine in logdb mirrors its semantics.
package logmem

import (
	"context"
	"sync"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/crypto"
	"trustpack/internal/infra/merkle"
)

type Log struct {
	mu            sync.RWMutex
	logID         string
	entries       []domain.LogEntry
	leaves        [][]byte
	indexByHash   map[string]int64
	sctByHash     map[string]domain.SCT
	latestSTH     domain.STH
	sthBySize     map[int64]domain.STH
	hasher        *crypto.Service
	clock         func() time.Time
	signSTH       func(domain.STH) ([]byte, error)
	signSCT       func(receiptHash string, timestamp time.Time) ([]byte, error)
	anchor        domain.AnchorService
	anchorTimeout time.Duration
}

func New(logID string) *Log {
	return NewWithSigners(logID, nil, nil)
}

func NewWithSigners(logID string, signSTH func(domain.STH) ([]byte, error), signSCT func(string, time.Time) ([]byte, error)) *Log {
	return NewWithSignersClockAndAnchor(logID, signSTH, signSCT, nil, nil, 0)
}

func NewWithSignersClockAndAnchor(logID string, signSTH func(domain.STH) ([]byte, error), signSCT func(string, time.Time) ([]byte, error), clock func() time.Time, anchorSvc domain.AnchorService, anchorTimeout time.Duration) *Log {
	if clock == nil {
		clock = time.Now
	}
	return &Log{
		logID:         logID,
		indexByHash:   make(map[string]int64),
		sctByHash:     make(map[string]domain.SCT),
		sthBySize:     make(map[int64]domain.STH),
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

// AppendEntry assigns the next index, merges the leaf into the tree and
// returns the committed entry together with the log's SCT and the tree head
// covering it. Resubmitting an already-logged receipt hash returns the
// original entry and SCT instead of a second index.
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

	l.mu.Lock()

	if index, ok := l.indexByHash[sub.ReceiptHash]; ok {
		entry := l.entries[index]
		sct := cloneSCT(l.sctByHash[sub.ReceiptHash])
		sth := cloneSTH(l.latestSTH)
		l.mu.Unlock()
		return entry, sct, sth, nil
	}

	now := l.clock().UTC()
	entry := domain.LogEntry{
		Index:        int64(len(l.entries)),
		Timestamp:    now,
		ReceiptHash:  sub.ReceiptHash,
		SaltHash:     sub.SaltHash,
		PolicyID:     sub.PolicyID,
		Jurisdiction: sub.Jurisdiction,
	}
	leafHash, err := l.hasher.ComputeLeafHash(entry)
	if err != nil {
		l.mu.Unlock()
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	l.entries = append(l.entries, entry)
	l.leaves = append(l.leaves, leafHash)

	root, err := merkle.Root(l.leaves)
	if err != nil {
		l.rollbackLastLocked()
		l.mu.Unlock()
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}

	sth := domain.STH{
		LogID:    l.logID,
		TreeSize: int64(len(l.leaves)),
		RootHash: root,
		IssuedAt: now,
	}
	if l.signSTH != nil {
		sig, err := l.signSTH(sth)
		if err != nil {
			l.rollbackLastLocked()
			l.mu.Unlock()
			return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
		}
		sth.Signature = sig
	}

	sct := domain.SCT{LogID: l.logID, Timestamp: now}
	if l.signSCT != nil {
		sig, err := l.signSCT(sub.ReceiptHash, now)
		if err != nil {
			l.rollbackLastLocked()
			l.mu.Unlock()
			return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
		}
		sct.Signature = sig
	}

	l.indexByHash[sub.ReceiptHash] = entry.Index
	l.sctByHash[sub.ReceiptHash] = sct
	l.latestSTH = sth
	l.sthBySize[sth.TreeSize] = cloneSTH(sth)
	l.mu.Unlock()

	l.anchorBestEffort(ctx, sth)
	return entry, cloneSCT(sct), cloneSTH(sth), nil
}

// GetEntries returns the committed entries in [start, end], truncated at the
// current tree size. start beyond the tree is ErrNotFound.
func (l *Log) GetEntries(ctx context.Context, start, end int64) ([]domain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if start < 0 || end < start {
		return nil, merkle.ErrInvalidIndex
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	size := int64(len(l.entries))
	if start >= size {
		return nil, domain.ErrNotFound
	}
	if end >= size {
		end = size - 1
	}
	out := make([]domain.LogEntry, 0, end-start+1)
	out = append(out, l.entries[start:end+1]...)
	return out, nil
}

// GetInclusionProofByHash builds the audit path for a logged receipt hash
// against the tree of the given size. treeSize 0 means the current tree.
func (l *Log) GetInclusionProofByHash(ctx context.Context, receiptHash string, treeSize int64) (domain.InclusionProof, error) {
	if err := ctx.Err(); err != nil {
		return domain.InclusionProof{}, err
	}

	l.mu.RLock()
	index, ok := l.indexByHash[receiptHash]
	if !ok {
		l.mu.RUnlock()
		return domain.InclusionProof{}, domain.ErrNotFound
	}
	if treeSize == 0 {
		treeSize = int64(len(l.leaves))
	}
	if treeSize < 0 || treeSize > int64(len(l.leaves)) {
		l.mu.RUnlock()
		return domain.InclusionProof{}, merkle.ErrInvalidSize
	}
	if index >= treeSize {
		l.mu.RUnlock()
		return domain.InclusionProof{}, domain.ErrNotFound
	}
	leaves := l.leaves[:treeSize]
	l.mu.RUnlock()

	path, err := merkle.InclusionProof(leaves, int(index))
	if err != nil {
		return domain.InclusionProof{}, err
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	return domain.InclusionProof{
		LogID:     l.logID,
		LeafIndex: index,
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

	l.mu.RLock()
	if secondSize > int64(len(l.leaves)) {
		l.mu.RUnlock()
		return domain.ConsistencyProof{}, merkle.ErrInvalidSize
	}
	leaves := l.leaves[:secondSize]
	l.mu.RUnlock()

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

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.latestSTH.TreeSize == 0 {
		return domain.STH{}, domain.ErrNotFound
	}
	return cloneSTH(l.latestSTH), nil
}

// GetSTHBySize returns the tree head recorded when the tree reached the
// given size. Auditors compare these against later observations; a root
// mismatch at an equal size is equivocation.
func (l *Log) GetSTHBySize(ctx context.Context, treeSize int64) (domain.STH, error) {
	if err := ctx.Err(); err != nil {
		return domain.STH{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	sth, ok := l.sthBySize[treeSize]
	if !ok {
		return domain.STH{}, domain.ErrNotFound
	}
	return cloneSTH(sth), nil
}

// rollbackLastLocked undoes a half-applied append. Caller holds the lock.
func (l *Log) rollbackLastLocked() {
	l.entries = l.entries[:len(l.entries)-1]
	l.leaves = l.leaves[:len(l.leaves)-1]
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

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}

func cloneSTH(sth domain.STH) domain.STH {
	return domain.STH{
		LogID:     sth.LogID,
		TreeSize:  sth.TreeSize,
		RootHash:  cloneHash(sth.RootHash),
		IssuedAt:  sth.IssuedAt,
		Signature: cloneHash(sth.Signature),
	}
}

func cloneSCT(sct domain.SCT) domain.SCT {
	return domain.SCT{
		LogID:     sct.LogID,
		Timestamp: sct.Timestamp,
		Signature: cloneHash(sct.Signature),
	}
}
