package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"trustpack/internal/domain"
)

type IssueReceiptRequest struct {
	Purpose       string
	Predicates    []string
	RPIdentifier  string
	RPDisplayName string
	CredentialID  string
	Consent       domain.ConsentDetails
}

type IssueReceiptResponse struct {
	Receipt domain.ConsentReceipt
	STH     *domain.STH
}

// IssueReceipt builds, salts, hashes, signs, and persists a consent
// receipt, then submits its hash to the transparency log. Log submission
// is best-effort within SubmitTimeout: a log outage yields a valid receipt
// with a nil TransparencyLogEntry, never a failed issuance.
type IssueReceipt struct {
	Receipts      ReceiptRepository
	Log           ReceiptLog
	Crypto        CryptoService
	Keys          domain.KeyManager
	ReceiptKeyRef domain.KeyRef
	Policy        PolicyEngine
	Jurisdictions *domain.JurisdictionTable
	SubmitTimeout time.Duration
	Now           Clock
}

const minPurposeLength = 10

func (uc *IssueReceipt) Execute(ctx context.Context, req IssueReceiptRequest) (*IssueReceiptResponse, error) {
	if err := validateIssueRequest(req); err != nil {
		return nil, err
	}

	now := uc.now()
	consent := req.Consent
	if consent.RetentionPeriodDays <= 0 {
		consent.RetentionPeriodDays = domain.DefaultRetentionPeriodDays
	}
	id, err := newReceiptID()
	if err != nil {
		return nil, err
	}
	receipt := domain.ConsentReceipt{
		ID:            id,
		Timestamp:     now,
		Purpose:       req.Purpose,
		Predicates:    domain.ParsePredicates(req.Predicates),
		RPIdentifier:  req.RPIdentifier,
		RPDisplayName: req.RPDisplayName,
		UserConsent:   consent,
		CredentialID:  req.CredentialID,
	}
	jurisdiction := uc.Jurisdictions.Lookup(receipt.RPIdentifier)

	policyID, err := uc.evaluatePolicy(ctx, receipt, jurisdiction)
	if err != nil {
		return nil, err
	}

	salt, err := uc.Crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	receipt.Salt = salt
	receipt.ReceiptHash, err = uc.Crypto.GenerateReceiptHash(receipt, salt)
	if err != nil {
		return nil, err
	}
	if uc.Keys != nil {
		canonical, err := uc.Crypto.CanonicalizeReceipt(receipt)
		if err != nil {
			return nil, err
		}
		receipt.Signature, err = uc.Keys.Sign(ctx, uc.ReceiptKeyRef, canonical)
		if err != nil {
			return nil, err
		}
	}

	if err := uc.Receipts.Save(ctx, receipt); err != nil {
		return nil, err
	}

	sth := uc.submitToLog(ctx, &receipt, policyID, jurisdiction)
	return &IssueReceiptResponse{Receipt: receipt, STH: sth}, nil
}

// submitToLog anchors the receipt hash in the transparency log and attaches
// the resulting entry. Any failure leaves the receipt unanchored.
func (uc *IssueReceipt) submitToLog(ctx context.Context, receipt *domain.ConsentReceipt, policyID, jurisdiction string) *domain.STH {
	if uc.Log == nil {
		return nil
	}
	timeout := uc.SubmitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entry, sct, sth, err := uc.Log.AppendEntry(subCtx, domain.LogSubmission{
		ReceiptHash:  receipt.ReceiptHash,
		SaltHash:     uc.Crypto.SaltHash(receipt.Salt),
		PolicyID:     policyID,
		Jurisdiction: jurisdiction,
	})
	if err != nil {
		return nil
	}

	receipt.TransparencyLogEntry = &domain.TransparencyLogEntry{
		LogID:      uc.Log.LogID(),
		LogIndex:   entry.Index,
		SCT:        sct,
		AnchoredAt: entry.Timestamp,
	}
	if err := uc.Receipts.Update(ctx, *receipt); err != nil {
		// The log accepted the entry; the local attachment can be
		// reconstructed later from the SCT, so the receipt stays valid.
		receipt.TransparencyLogEntry = nil
		return nil
	}
	return &sth
}

// evaluatePolicy runs the consent policy gate. A deny blocks issuance; an
// engine error does not, since policy evaluation is advisory once the
// consent fields passed structural validation.
func (uc *IssueReceipt) evaluatePolicy(ctx context.Context, receipt domain.ConsentReceipt, jurisdiction string) (string, error) {
	if uc.Policy == nil {
		return "", nil
	}
	predicates := make([]string, 0, len(receipt.Predicates))
	for _, p := range receipt.Predicates {
		predicates = append(predicates, p.Identifier())
	}
	evaluation, err := uc.Policy.Evaluate(ctx, domain.PolicyInput{
		Purpose:      receipt.Purpose,
		Predicates:   predicates,
		RPIdentifier: receipt.RPIdentifier,
		Jurisdiction: jurisdiction,
		Consent: domain.PolicyConsent{
			ExplicitConsent:              receipt.UserConsent.ExplicitConsent,
			DataMinimizationAcknowledged: receipt.UserConsent.DataMinimizationAcknowledged,
			RetentionPeriodUnderstood:    receipt.UserConsent.RetentionPeriodUnderstood,
			RevocationRightsUnderstood:   receipt.UserConsent.RevocationRightsUnderstood,
			RetentionPeriodDays:          receipt.UserConsent.RetentionPeriodDays,
		},
	})
	if err != nil {
		return "", nil
	}
	if !evaluation.Result.Allow {
		codes := make([]string, 0, len(evaluation.Result.Deny))
		for _, deny := range evaluation.Result.Deny {
			codes = append(codes, deny.Code)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrPolicyDenied, strings.Join(codes, ", "))
	}
	return evaluation.BundleID, nil
}

func (uc *IssueReceipt) now() time.Time {
	if uc.Now != nil {
		return uc.Now().UTC()
	}
	return time.Now().UTC()
}

func validateIssueRequest(req IssueReceiptRequest) error {
	if len(strings.TrimSpace(req.Purpose)) < minPurposeLength {
		return fmt.Errorf("%w: purpose must be at least %d characters", domain.ErrInvalidReceipt, minPurposeLength)
	}
	if !req.Consent.ExplicitConsent {
		return fmt.Errorf("%w: explicit consent is required", domain.ErrInvalidReceipt)
	}
	if strings.TrimSpace(req.RPIdentifier) == "" {
		return fmt.Errorf("%w: rp identifier is required", domain.ErrInvalidReceipt)
	}
	if strings.TrimSpace(req.CredentialID) == "" {
		return fmt.Errorf("%w: credential id is required", domain.ErrInvalidReceipt)
	}
	return nil
}

func newReceiptID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	bytes[6] = (bytes[6] & 0x0f) | 0x40
	bytes[8] = (bytes[8] & 0x3f) | 0x80
	hexStr := hex.EncodeToString(bytes)
	return hexStr[0:8] + "-" + hexStr[8:12] + "-" + hexStr[12:16] + "-" + hexStr[16:20] + "-" + hexStr[20:32], nil
}
