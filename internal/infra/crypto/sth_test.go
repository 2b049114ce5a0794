package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"trustpack/internal/domain"
)

func TestCanonicalizeSTHExactBytes(t *testing.T) {
	rootHash := make([]byte, 32)
	for i := range rootHash {
		rootHash[i] = byte(i)
	}
	sth := domain.TreeHead{
		LogID:    "trustpack-consent-log-v1",
		TreeSize: 5,
		RootHash: rootHash,
		IssuedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	service := NewService()
	canonical, err := service.CanonicalizeSTH(sth)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"issued_at":"2026-03-14T10:00:00Z","log_id":"trustpack-consent-log-v1",` +
		`"root_hash":"` + hex.EncodeToString(rootHash) + `","tree_size":5}`
	if string(canonical) != want {
		t.Fatalf("canonical bytes:\n got %s\nwant %s", canonical, want)
	}
}

func TestSTHSignatureRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	service := NewService()

	sth := domain.TreeHead{
		LogID:    "trustpack-consent-log-v1",
		TreeSize: 9,
		RootHash: make([]byte, 32),
		IssuedAt: time.Now().UTC(),
	}
	canonical, err := service.CanonicalizeSTH(sth)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	sth.Signature, err = service.Sign(canonical, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := service.VerifySTHSignature(sth, pub); err != nil {
		t.Fatalf("verify: %v", err)
	}

	forged := sth
	forged.TreeSize = 10
	if err := service.VerifySTHSignature(forged, pub); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("forged tree size: err = %v, want ErrSignatureInvalid", err)
	}
}

func TestSCTSignatureRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	service := NewService()

	receiptHash := "sha256:" + hex.EncodeToString(make([]byte, 32))
	sct := domain.SCT{
		LogID:     "trustpack-consent-log-v1",
		Timestamp: time.Now().UTC(),
	}
	canonical, err := service.CanonicalizeSCT(sct.LogID, receiptHash, sct.Timestamp)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	sct.Signature, err = service.Sign(canonical, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := service.VerifySCTSignature(receiptHash, sct, pub); err != nil {
		t.Fatalf("verify: %v", err)
	}

	otherHash := "sha256:" + hex.EncodeToString(append(make([]byte, 31), 0x01))
	if err := service.VerifySCTSignature(otherHash, sct, pub); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("hash swap: err = %v, want ErrSignatureInvalid", err)
	}
}
