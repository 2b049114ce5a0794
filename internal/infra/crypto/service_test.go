package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/merkle"
)

func sampleReceipt() domain.ConsentReceipt {
	return domain.ConsentReceipt{
		ID:           "rcpt_01",
		Timestamp:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Purpose:      "Verify eligibility for childcare role",
		Predicates:   domain.ParsePredicates([]string{"identity_verified", "age_gte_18"}),
		RPIdentifier: "childcare.madrid.es",
		CredentialID: "cred_abc123",
		UserConsent: domain.ConsentDetails{
			ExplicitConsent:              true,
			DataMinimizationAcknowledged: true,
			RetentionPeriodUnderstood:    true,
			RevocationRightsUnderstood:   true,
			RetentionPeriodDays:          domain.DefaultRetentionPeriodDays,
		},
	}
}

func TestCanonicalizeReceiptExactBytes(t *testing.T) {
	service := NewService()
	canonical, err := service.CanonicalizeReceipt(sampleReceipt())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"consent":{"data_minimization_acknowledged":true,"explicit_consent":true,` +
		`"retention_period_days":90,"retention_period_understood":true,` +
		`"revocation_rights_understood":true},"credential_id":"cred_abc123",` +
		`"id":"rcpt_01","predicates":"age_gte_18,identity_verified",` +
		`"purpose":"Verify eligibility for childcare role",` +
		`"rp_identifier":"childcare.madrid.es","timestamp":"2026-03-14T09:26:53Z"}`
	if string(canonical) != want {
		t.Fatalf("canonical bytes:\n got %s\nwant %s", canonical, want)
	}
}

func TestCanonicalizeReceiptPredicateOrderInvariance(t *testing.T) {
	service := NewService()
	first := sampleReceipt()
	second := sampleReceipt()
	second.Predicates = domain.ParsePredicates([]string{"age_gte_18", "identity_verified"})

	a, err := service.CanonicalizeReceipt(first)
	if err != nil {
		t.Fatalf("canonicalize first: %v", err)
	}
	b, err := service.CanonicalizeReceipt(second)
	if err != nil {
		t.Fatalf("canonicalize second: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("predicate insertion order changed the canonical form")
	}
}

func TestGenerateReceiptHashMatchesFormula(t *testing.T) {
	service := NewService()
	receipt := sampleReceipt()
	salt := "abc123abc123abc123abc123abc12345"

	canonical, err := service.CanonicalizeReceipt(receipt)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	sum := sha256.Sum256(append(append([]byte{}, canonical...), []byte("|salt:"+salt)...))
	want := "sha256:" + hex.EncodeToString(sum[:])

	got, err := service.GenerateReceiptHash(receipt, salt)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if got != want {
		t.Fatalf("hash = %s, want %s", got, want)
	}

	// Re-verification with the stored salt must reproduce the identical hash.
	again, err := service.GenerateReceiptHash(receipt, salt)
	if err != nil {
		t.Fatalf("rehash: %v", err)
	}
	if again != got {
		t.Fatal("repeated hashing with the same salt disagreed")
	}

	other, err := service.GenerateReceiptHash(receipt, "zzz999zzz999zzz999zzz999zzz99900")
	if err != nil {
		t.Fatalf("hash with other salt: %v", err)
	}
	if other == got {
		t.Fatal("different salts produced the same hash")
	}
}

func TestGenerateReceiptHashRequiresSalt(t *testing.T) {
	service := NewService()
	if _, err := service.GenerateReceiptHash(sampleReceipt(), ""); !errors.Is(err, domain.ErrSaltMissing) {
		t.Fatalf("err = %v, want ErrSaltMissing", err)
	}
}

func TestGenerateSalt(t *testing.T) {
	service := NewService()
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		salt, err := service.GenerateSalt()
		if err != nil {
			t.Fatalf("generate salt: %v", err)
		}
		if len(salt) != SaltLength {
			t.Fatalf("salt length = %d, want %d", len(salt), SaltLength)
		}
		for _, r := range salt {
			if !strings.ContainsRune(saltAlphabet, r) {
				t.Fatalf("salt contains %q outside the alphabet", r)
			}
		}
		if seen[salt] {
			t.Fatal("salt repeated")
		}
		seen[salt] = true
	}
}

func TestSaltHashIsDigestOfBareSalt(t *testing.T) {
	service := NewService()
	salt := "abc123abc123abc123abc123abc12345"
	sum := sha256.Sum256([]byte(salt))
	want := "sha256:" + hex.EncodeToString(sum[:])
	if got := service.SaltHash(salt); got != want {
		t.Fatalf("salt hash = %s, want %s", got, want)
	}
}

func TestSignAndVerify(t *testing.T) {
	service := NewService()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	canonical, err := service.CanonicalizeReceipt(sampleReceipt())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	sig, err := service.Sign(canonical, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := service.VerifySignature(canonical, sig, pub); err != nil {
		t.Fatalf("verify: %v", err)
	}

	mutated := append([]byte{}, canonical...)
	mutated[0] ^= 0x01
	if err := service.VerifySignature(mutated, sig, pub); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("mutated payload: err = %v, want ErrSignatureInvalid", err)
	}
	if err := service.VerifySignature(canonical, sig[:len(sig)-1], pub); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("truncated signature: err = %v, want ErrSignatureInvalid", err)
	}
	if err := service.VerifySignature(canonical, sig, pub[:16]); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("short public key: err = %v, want ErrSignatureInvalid", err)
	}

	otherPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate second key: %v", err)
	}
	if err := service.VerifySignature(canonical, sig, otherPub); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("wrong key: err = %v, want ErrSignatureInvalid", err)
	}

	if _, err := service.Sign(canonical, priv[:10]); err == nil {
		t.Fatal("expected error for malformed private key")
	}
}

func TestComputeLeafHash(t *testing.T) {
	service := NewService()
	entry := domain.LogEntry{
		Index:        4,
		Timestamp:    time.Date(2026, 3, 14, 9, 27, 0, 0, time.UTC),
		ReceiptHash:  "sha256:" + strings.Repeat("ab", 32),
		SaltHash:     "sha256:" + strings.Repeat("cd", 32),
		PolicyID:     "consent-v1",
		Jurisdiction: "ES",
	}

	canonical, err := service.CanonicalizeEntry(entry)
	if err != nil {
		t.Fatalf("canonicalize entry: %v", err)
	}
	want := merkle.LeafHash(canonical)
	got, err := service.ComputeLeafHash(entry)
	if err != nil {
		t.Fatalf("leaf hash: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("leaf hash disagrees with canonical entry bytes")
	}

	moved := entry
	moved.Index = 5
	other, err := service.ComputeLeafHash(moved)
	if err != nil {
		t.Fatalf("leaf hash at other index: %v", err)
	}
	if bytes.Equal(got, other) {
		t.Fatal("leaf hash ignores the index")
	}
}
