package usecase

import (
	"context"
	"time"

	"trustpack/internal/domain"
)

// ReceiptLog is the transparency log surface the receipt lifecycle needs.
// Both the in-memory and the postgres-backed engines implement it, as does
// the HTTP log client used by verifiers auditing a remote log.
type ReceiptLog interface {
	LogID() string
	AppendEntry(ctx context.Context, sub domain.LogSubmission) (domain.LogEntry, domain.SCT, domain.STH, error)
	GetEntries(ctx context.Context, start, end int64) ([]domain.LogEntry, error)
	GetInclusionProofByHash(ctx context.Context, receiptHash string, treeSize int64) (domain.InclusionProof, error)
	GetConsistencyProof(ctx context.Context, firstSize, secondSize int64) (domain.ConsistencyProof, error)
	GetLatestSTH(ctx context.Context) (domain.STH, error)
	GetSTHBySize(ctx context.Context, treeSize int64) (domain.STH, error)
}

type CryptoService interface {
	GenerateSalt() (string, error)
	GenerateReceiptHash(receipt domain.ConsentReceipt, salt string) (string, error)
	SaltHash(salt string) string
	CanonicalizeReceipt(receipt domain.ConsentReceipt) ([]byte, error)
	ComputeLeafHash(entry domain.LogEntry) ([]byte, error)
	VerifySTHSignature(sth domain.TreeHead, pubKey []byte) error
}

type MerkleService interface {
	VerifyInclusionProof(leafHash []byte, leafIndex int64, treeSize int64, path [][]byte, expectedRoot []byte) (bool, error)
	VerifyConsistencyProof(oldRoot []byte, newRoot []byte, fromSize int64, toSize int64, path [][]byte) (bool, error)
}

type ReceiptRepository interface {
	Save(ctx context.Context, receipt domain.ConsentReceipt) error
	Update(ctx context.Context, receipt domain.ConsentReceipt) error
	GetByID(ctx context.Context, id string) (*domain.ConsentReceipt, error)
	ListByRP(ctx context.Context, rpIdentifier string) ([]domain.ConsentReceipt, error)
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}

type Clock func() time.Time
