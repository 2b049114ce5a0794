package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/usecase"
)

var _ usecase.ReceiptRepository = (*ConsentReceiptRepository)(nil)

func TestConsentReceiptRepository_NilDB(t *testing.T) {
	repo := NewConsentReceiptRepository(nil)
	ctx := context.Background()

	if err := repo.Save(ctx, domain.ConsentReceipt{ID: "r1"}); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("save: err = %v", err)
	}
	if err := repo.Update(ctx, domain.ConsentReceipt{ID: "r1"}); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("update: err = %v", err)
	}
	if _, err := repo.GetByID(ctx, "r1"); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("get: err = %v", err)
	}
	if _, err := repo.ListByRP(ctx, "rp.example"); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("list: err = %v", err)
	}
}

func TestReceiptModelRoundTrip(t *testing.T) {
	verifiedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	receipt := domain.ConsentReceipt{
		ID:           "rec_1",
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Purpose:      "Verify eligibility for childcare role",
		Predicates:   domain.ParsePredicates([]string{"age_gte_18"}),
		RPIdentifier: "childcare.madrid.es",
		UserConsent: domain.ConsentDetails{
			ExplicitConsent:     true,
			RetentionPeriodDays: 90,
		},
		ReceiptHash: "sha256:aa",
		Salt:        "abc123abc123abc123abc123abc12345",
		TransparencyLogEntry: &domain.TransparencyLogEntry{
			LogID:      "log-a",
			LogIndex:   7,
			SCT:        domain.SCT{LogID: "log-a", Timestamp: verifiedAt},
			AnchoredAt: verifiedAt,
			VerifiedAt: &verifiedAt,
			IsVerified: true,
		},
	}

	model, err := receiptToModel(receipt)
	if err != nil {
		t.Fatalf("to model: %v", err)
	}
	got, err := receiptFromModel(model)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if got.ReceiptHash != receipt.ReceiptHash || got.Salt != receipt.Salt {
		t.Fatal("hash or salt did not round trip")
	}
	if len(got.Predicates) != 1 || got.Predicates[0].Identifier() != "age_gte_18" {
		t.Fatalf("predicates = %v", got.Predicates)
	}
	if got.TransparencyLogEntry == nil || !got.TransparencyLogEntry.IsVerified {
		t.Fatal("log entry did not round trip")
	}
	if got.TransparencyLogEntry.LogIndex != 7 {
		t.Fatalf("log index = %d", got.TransparencyLogEntry.LogIndex)
	}
}
