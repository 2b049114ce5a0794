package logclient

import (
	"bytes"
	"crypto/ed25519"

	"trustpack/internal/domain"
	cryptoinfra "trustpack/internal/infra/crypto"
	"trustpack/internal/infra/merkle"
)

// VerifySTH checks the log's signature over a tree head.
func VerifySTH(sth domain.STH, logPublicKey ed25519.PublicKey) error {
	service := cryptoinfra.NewService()
	return service.VerifySTHSignature(sth, logPublicKey)
}

// VerifySCT checks the log's signature over a submission promise.
func VerifySCT(receiptHash string, sct domain.SCT, logPublicKey ed25519.PublicKey) error {
	service := cryptoinfra.NewService()
	return service.VerifySCTSignature(receiptHash, sct, logPublicKey)
}

// VerifyInclusion recomputes the leaf hash for a served entry and checks
// its audit path against the given tree head. The proof must be rooted in
// exactly the tree the head signs; a proof for any other size, however
// self-consistent, is rejected before any path hashing.
func VerifyInclusion(entry domain.LogEntry, proof domain.InclusionProof, sth domain.STH) error {
	if proof.TreeSize != sth.TreeSize || !bytes.Equal(proof.RootHash, sth.RootHash) {
		return domain.ErrProofInvalid
	}
	service := cryptoinfra.NewService()
	leafHash, err := service.ComputeLeafHash(entry)
	if err != nil {
		return err
	}
	ok, err := (&merkle.Service{}).VerifyInclusionProof(leafHash, proof.LeafIndex, proof.TreeSize, proof.AuditPath, proof.RootHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrProofInvalid
	}
	return nil
}

// VerifyConsistency checks that the tree under newer is an append-only
// extension of the tree under older.
func VerifyConsistency(older, newer domain.STH, proof domain.ConsistencyProof) error {
	if proof.FirstSize != older.TreeSize || proof.SecondSize != newer.TreeSize {
		return domain.ErrProofInvalid
	}
	ok, err := (&merkle.Service{}).VerifyConsistencyProof(older.RootHash, newer.RootHash, older.TreeSize, newer.TreeSize, proof.Path)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrProofInvalid
	}
	return nil
}
