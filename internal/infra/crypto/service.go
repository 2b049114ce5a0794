// Package crypto implements the deterministic serialization and primitive
// operations the log and the holder share: canonical JSON, salted receipt
// hashing, ed25519 signing and leaf hash computation. Everything here is a
// pure function of its input; key material lives behind domain.KeyManager.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/merkle"
)

// SaltLength is the number of characters in a generated receipt salt.
const SaltLength = 32

const saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// GenerateSalt draws SaltLength alphanumeric characters from crypto/rand.
// The salt keeps a logged receipt hash from acting as a stable fingerprint
// of low-entropy personal data.
func (s *Service) GenerateSalt() (string, error) {
	out := make([]byte, 0, SaltLength)
	buf := make([]byte, 1)
	// Rejection sampling keeps the alphabet distribution uniform.
	max := byte(256 - 256%len(saltAlphabet))
	for len(out) < SaltLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		if buf[0] >= max {
			continue
		}
		out = append(out, saltAlphabet[int(buf[0])%len(saltAlphabet)])
	}
	return string(out), nil
}

// CanonicalizeReceipt serializes the receipt's semantic fields in a fixed
// order. Predicates are sorted before joining so insertion order never
// changes the canonical form.
func (s *Service) CanonicalizeReceipt(receipt domain.ConsentReceipt) ([]byte, error) {
	payload := receiptPayload{
		ID:           receipt.ID,
		Timestamp:    receipt.Timestamp.UTC().Format(time.RFC3339Nano),
		Purpose:      receipt.Purpose,
		Predicates:   joinPredicates(receipt.Predicates),
		RPIdentifier: receipt.RPIdentifier,
		CredentialID: receipt.CredentialID,
		Consent: consentPayload{
			ExplicitConsent:              receipt.UserConsent.ExplicitConsent,
			DataMinimizationAcknowledged: receipt.UserConsent.DataMinimizationAcknowledged,
			RetentionPeriodUnderstood:    receipt.UserConsent.RetentionPeriodUnderstood,
			RevocationRightsUnderstood:   receipt.UserConsent.RevocationRightsUnderstood,
			RetentionPeriodDays:          receipt.UserConsent.RetentionPeriodDays,
		},
	}
	return CanonicalizeAny(payload)
}

// GenerateReceiptHash computes "sha256:" + hex(SHA256(canonical || "|salt:" || salt)).
// The same (receipt, salt) pair always reproduces the same hash, which is
// what later re-verification relies on.
func (s *Service) GenerateReceiptHash(receipt domain.ConsentReceipt, salt string) (string, error) {
	if salt == "" {
		return "", domain.ErrSaltMissing
	}
	canonical, err := s.CanonicalizeReceipt(receipt)
	if err != nil {
		return "", err
	}
	preimage := make([]byte, 0, len(canonical)+len("|salt:")+len(salt))
	preimage = append(preimage, canonical...)
	preimage = append(preimage, []byte("|salt:")...)
	preimage = append(preimage, []byte(salt)...)
	return domain.NewSHA256Digest(sha256Bytes(preimage)).String(), nil
}

// SaltHash returns the digest of the bare salt, the only form of the salt
// the log service ever sees.
func (s *Service) SaltHash(salt string) string {
	return domain.NewSHA256Digest(sha256Bytes([]byte(salt))).String()
}

// Sign signs the payload with an ed25519 private key.
func (s *Service) Sign(payload []byte, privKey []byte) ([]byte, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: %d", len(privKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privKey), payload), nil
}

// VerifySignature checks an ed25519 signature over payload. Malformed or
// truncated signatures fail verification rather than erroring differently;
// every failure path wraps domain.ErrSignatureInvalid.
func (s *Service) VerifySignature(payload []byte, sig []byte, pubKey []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: invalid ed25519 public key length %d", domain.ErrSignatureInvalid, len(pubKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: invalid ed25519 signature length %d", domain.ErrSignatureInvalid, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), payload, sig) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// CanonicalizeEntry serializes a committed log entry for leaf hashing. The
// index and timestamp are part of the leaf so that any party holding the
// get-entries response can recompute the leaf hash bit for bit.
func (s *Service) CanonicalizeEntry(entry domain.LogEntry) ([]byte, error) {
	payload := entryPayload{
		LeafIndex:    entry.Index,
		Timestamp:    entry.Timestamp.UTC().Format(time.RFC3339Nano),
		ReceiptHash:  entry.ReceiptHash,
		SaltHash:     entry.SaltHash,
		PolicyID:     entry.PolicyID,
		Jurisdiction: entry.Jurisdiction,
	}
	return CanonicalizeAny(payload)
}

// ComputeLeafHash maps a committed entry to its RFC 6962 leaf hash.
func (s *Service) ComputeLeafHash(entry domain.LogEntry) ([]byte, error) {
	canonical, err := s.CanonicalizeEntry(entry)
	if err != nil {
		return nil, err
	}
	return merkle.LeafHash(canonical), nil
}

type receiptPayload struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	Purpose      string         `json:"purpose"`
	Predicates   string         `json:"predicates"`
	RPIdentifier string         `json:"rp_identifier"`
	CredentialID string         `json:"credential_id"`
	Consent      consentPayload `json:"consent"`
}

type consentPayload struct {
	ExplicitConsent              bool `json:"explicit_consent"`
	DataMinimizationAcknowledged bool `json:"data_minimization_acknowledged"`
	RetentionPeriodUnderstood    bool `json:"retention_period_understood"`
	RevocationRightsUnderstood   bool `json:"revocation_rights_understood"`
	RetentionPeriodDays          int  `json:"retention_period_days"`
}

type entryPayload struct {
	LeafIndex    int64  `json:"leaf_index"`
	Timestamp    string `json:"timestamp"`
	ReceiptHash  string `json:"receipt_hash"`
	SaltHash     string `json:"salt_hash"`
	PolicyID     string `json:"policy_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

func joinPredicates(predicates []domain.Predicate) string {
	ids := make([]string, 0, len(predicates))
	for _, p := range predicates {
		ids = append(ids, p.Identifier())
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func sha256Bytes(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:]
}
