package usecase

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"trustpack/internal/domain"
)

type VerifyReceiptResult struct {
	Verified bool
	Reason   string
	Proof    *domain.InclusionProof
	STH      *domain.STH
}

// VerifyReceipt re-verifies a stored receipt against the transparency log:
// it recomputes the salted hash, fetches a fresh inclusion proof, and
// checks it against a signed tree head. A successful verification is
// recorded on the receipt; IsVerified never transitions back to false.
type VerifyReceipt struct {
	Receipts     ReceiptRepository
	Log          ReceiptLog
	Crypto       CryptoService
	Merkle       MerkleService
	LogPublicKey []byte
	Now          Clock
}

func (uc *VerifyReceipt) Execute(ctx context.Context, receiptID string) (*VerifyReceiptResult, error) {
	receipt, err := uc.Receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.Salt == "" {
		return nil, fmt.Errorf("%w: receipt %s has no salt", domain.ErrSaltMissing, receiptID)
	}

	recomputed, err := uc.Crypto.GenerateReceiptHash(*receipt, receipt.Salt)
	if err != nil {
		return nil, err
	}
	if recomputed != receipt.ReceiptHash {
		return failed("stored receipt hash does not match recomputed hash"), nil
	}

	// The signed tree head comes first; the proof is then requested at
	// exactly that size so the log cannot answer from a tree no signature
	// vouches for.
	sth, err := uc.Log.GetLatestSTH(ctx)
	if err != nil {
		return failed("signed tree head unavailable: " + err.Error()), nil
	}
	if len(uc.LogPublicKey) > 0 {
		if err := uc.Crypto.VerifySTHSignature(sth, uc.LogPublicKey); err != nil {
			return failed("sth signature invalid"), nil
		}
	}

	proof, err := uc.Log.GetInclusionProofByHash(ctx, receipt.ReceiptHash, sth.TreeSize)
	if err != nil {
		return failed("inclusion proof unavailable: " + err.Error()), nil
	}
	if proof.TreeSize != sth.TreeSize || !bytes.Equal(proof.RootHash, sth.RootHash) {
		return failed("proof is not rooted in the signed tree head"), nil
	}

	entries, err := uc.Log.GetEntries(ctx, proof.LeafIndex, proof.LeafIndex)
	if err != nil || len(entries) != 1 {
		return failed("log entry unavailable"), nil
	}
	entry := entries[0]
	if entry.ReceiptHash != receipt.ReceiptHash {
		return failed("log entry carries a different receipt hash"), nil
	}
	if entry.SaltHash != uc.Crypto.SaltHash(receipt.Salt) {
		return failed("log entry carries a different salt hash"), nil
	}

	leafHash, err := uc.Crypto.ComputeLeafHash(entry)
	if err != nil {
		return nil, err
	}
	ok, err := uc.Merkle.VerifyInclusionProof(leafHash, proof.LeafIndex, proof.TreeSize, proof.AuditPath, proof.RootHash)
	if err != nil || !ok {
		return failed("inclusion proof does not verify"), nil
	}

	uc.recordVerification(ctx, receipt, proof)
	return &VerifyReceiptResult{
		Verified: true,
		Proof:    &proof,
		STH:      &sth,
	}, nil
}

// recordVerification attaches the proof and flips IsVerified. Persistence
// failures are tolerated; the verification result stands either way.
func (uc *VerifyReceipt) recordVerification(ctx context.Context, receipt *domain.ConsentReceipt, proof domain.InclusionProof) {
	now := uc.now()
	if receipt.TransparencyLogEntry == nil {
		receipt.TransparencyLogEntry = &domain.TransparencyLogEntry{
			LogID:    proof.LogID,
			LogIndex: proof.LeafIndex,
		}
	}
	entry := receipt.TransparencyLogEntry
	if entry.LogIndex == domain.UnresolvedLogIndex {
		entry.LogIndex = proof.LeafIndex
	}
	entry.InclusionProof = &proof
	entry.VerifiedAt = &now
	entry.IsVerified = true
	_ = uc.Receipts.Update(ctx, *receipt)
}

func (uc *VerifyReceipt) now() time.Time {
	if uc.Now != nil {
		return uc.Now().UTC()
	}
	return time.Now().UTC()
}

func failed(reason string) *VerifyReceiptResult {
	return &VerifyReceiptResult{Verified: false, Reason: reason}
}
