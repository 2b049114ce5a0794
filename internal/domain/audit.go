package domain

import (
	"context"
	"time"
)

type AuditOutcome string

const (
	AuditOutcomeHealthy      = AuditOutcome("healthy")
	AuditOutcomeProofFailure = AuditOutcome("proof_failure")
	AuditOutcomeEquivocation = AuditOutcome("equivocation")
	AuditOutcomeUnavailable  = AuditOutcome("unavailable")
)

// AuditReport is the result of one auditor pass: the observed tree head,
// how many sampled entries verified, and whether the log equivocated.
type AuditReport struct {
	ID            string
	LogID         string
	TreeSize      int64
	RootHash      []byte
	Sampled       int
	Verified      int
	Failed        int
	ConsistencyOK bool
	Outcome       AuditOutcome
	Findings      []string
	StartedAt     time.Time
	CompletedAt   time.Time
}

type AuditReportRepository interface {
	Append(ctx context.Context, report AuditReport) error
	ListByLog(ctx context.Context, logID string, limit int) ([]AuditReport, error)
}
