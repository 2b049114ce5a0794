package crypto

import (
	"encoding/hex"
	"time"

	"trustpack/internal/domain"
)

// CanonicalizeSTH produces the exact bytes the log signs when it commits a
// tree head. Verifiers rebuild these bytes from the wire form of the STH.
func (s *Service) CanonicalizeSTH(sth domain.TreeHead) ([]byte, error) {
	payload := sthPayload{
		LogID:    sth.LogID,
		TreeSize: sth.TreeSize,
		RootHash: hex.EncodeToString(sth.RootHash),
		IssuedAt: sth.IssuedAt.UTC().Format(time.RFC3339Nano),
	}
	return CanonicalizeAny(payload)
}

// CanonicalizeSCT produces the bytes the log signs when it promises to
// incorporate receiptHash.
func (s *Service) CanonicalizeSCT(logID string, receiptHash string, timestamp time.Time) ([]byte, error) {
	payload := sctPayload{
		LogID:       logID,
		ReceiptHash: receiptHash,
		Timestamp:   timestamp.UTC().Format(time.RFC3339Nano),
	}
	return CanonicalizeAny(payload)
}

func (s *Service) VerifySTHSignature(sth domain.TreeHead, pubKey []byte) error {
	canonical, err := s.CanonicalizeSTH(sth)
	if err != nil {
		return err
	}
	return s.VerifySignature(canonical, sth.Signature, pubKey)
}

func (s *Service) VerifySCTSignature(receiptHash string, sct domain.SCT, pubKey []byte) error {
	canonical, err := s.CanonicalizeSCT(sct.LogID, receiptHash, sct.Timestamp)
	if err != nil {
		return err
	}
	return s.VerifySignature(canonical, sct.Signature, pubKey)
}

type sthPayload struct {
	LogID    string `json:"log_id"`
	TreeSize int64  `json:"tree_size"`
	RootHash string `json:"root_hash"`
	IssuedAt string `json:"issued_at"`
}

type sctPayload struct {
	LogID       string `json:"log_id"`
	ReceiptHash string `json:"receipt_hash"`
	Timestamp   string `json:"timestamp"`
}
