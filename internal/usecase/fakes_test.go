package usecase

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/crypto"
	"trustpack/internal/infra/logmem"
)

type memReceipts struct {
	mu       sync.Mutex
	receipts map[string]domain.ConsentReceipt
	saveErr  error
}

func newMemReceipts() *memReceipts {
	return &memReceipts{receipts: make(map[string]domain.ConsentReceipt)}
}

func (m *memReceipts) Save(_ context.Context, receipt domain.ConsentReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.receipts[receipt.ID] = receipt
	return nil
}

func (m *memReceipts) Update(_ context.Context, receipt domain.ConsentReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receipts[receipt.ID]; !ok {
		return domain.ErrNotFound
	}
	m.receipts[receipt.ID] = receipt
	return nil
}

func (m *memReceipts) GetByID(_ context.Context, id string) (*domain.ConsentReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.receipts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := receipt
	return &out, nil
}

func (m *memReceipts) ListByRP(_ context.Context, rpIdentifier string) ([]domain.ConsentReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ConsentReceipt
	for _, receipt := range m.receipts {
		if receipt.RPIdentifier == rpIdentifier {
			out = append(out, receipt)
		}
	}
	return out, nil
}

// downLog simulates a log that cannot be reached.
type downLog struct{}

func (downLog) LogID() string { return "down" }

func (downLog) AppendEntry(context.Context, domain.LogSubmission) (domain.LogEntry, domain.SCT, domain.STH, error) {
	return domain.LogEntry{}, domain.SCT{}, domain.STH{}, domain.ErrLogUnavailable
}

func (downLog) GetEntries(context.Context, int64, int64) ([]domain.LogEntry, error) {
	return nil, domain.ErrLogUnavailable
}

func (downLog) GetInclusionProofByHash(context.Context, string, int64) (domain.InclusionProof, error) {
	return domain.InclusionProof{}, domain.ErrLogUnavailable
}

func (downLog) GetConsistencyProof(context.Context, int64, int64) (domain.ConsistencyProof, error) {
	return domain.ConsistencyProof{}, domain.ErrLogUnavailable
}

func (downLog) GetLatestSTH(context.Context) (domain.STH, error) {
	return domain.STH{}, domain.ErrLogUnavailable
}

func (downLog) GetSTHBySize(context.Context, int64) (domain.STH, error) {
	return domain.STH{}, domain.ErrLogUnavailable
}

type stubPolicy struct {
	result domain.PolicyResult
	err    error
}

func (s stubPolicy) Evaluate(context.Context, domain.PolicyInput) (domain.PolicyEvaluation, error) {
	if s.err != nil {
		return domain.PolicyEvaluation{}, s.err
	}
	return domain.PolicyEvaluation{BundleID: "consent_v1", Result: s.result}, nil
}

type stubKeys struct {
	priv ed25519.PrivateKey
}

func (s stubKeys) Sign(_ context.Context, _ domain.KeyRef, payload []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, payload), nil
}

func (s stubKeys) PublicKey(context.Context, domain.KeyRef) ([]byte, error) {
	pub, ok := s.priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("unexpected key type")
	}
	return pub, nil
}

type recordingReports struct {
	mu      sync.Mutex
	reports []domain.AuditReport
}

func (r *recordingReports) Append(_ context.Context, report domain.AuditReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *recordingReports) ListByLog(_ context.Context, logID string, limit int) ([]domain.AuditReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditReport
	for _, report := range r.reports {
		if report.LogID == logID {
			out = append(out, report)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const testLogID = "trustpack-consent-log-test"

// signedLog builds an in-memory log whose STHs and SCTs are ed25519 signed.
func signedLog(priv ed25519.PrivateKey) *logmem.Log {
	service := crypto.NewService()
	signSTH := func(sth domain.STH) ([]byte, error) {
		canonical, err := service.CanonicalizeSTH(sth)
		if err != nil {
			return nil, err
		}
		return service.Sign(canonical, priv)
	}
	signSCT := func(receiptHash string, ts time.Time) ([]byte, error) {
		canonical, err := service.CanonicalizeSCT(testLogID, receiptHash, ts)
		if err != nil {
			return nil, err
		}
		return service.Sign(canonical, priv)
	}
	return logmem.NewWithSigners(testLogID, signSTH, signSCT)
}

func validIssueRequest() IssueReceiptRequest {
	return IssueReceiptRequest{
		Purpose:       "Verify eligibility for childcare role",
		Predicates:    []string{"age_gte_18", "identity_verified"},
		RPIdentifier:  "childcare.madrid.es",
		RPDisplayName: "Madrid Childcare Services",
		CredentialID:  "cred_abc123",
		Consent: domain.ConsentDetails{
			ExplicitConsent:              true,
			DataMinimizationAcknowledged: true,
			RetentionPeriodUnderstood:    true,
			RevocationRightsUnderstood:   true,
			RetentionPeriodDays:          90,
		},
	}
}
