package domain

import (
	"context"
	"time"
)

// AnchorService submits a tree-head commitment to an external witness.
// Implementations must not fail core flows on network or provider errors;
// anchoring is strictly best-effort.
type AnchorService interface {
	AnchorSTH(ctx context.Context, sth STH) (AnchorAttempt, error)
}

const (
	AnchorStatusAnchored = "anchored"
	AnchorStatusFailed   = "failed"
	AnchorStatusSkipped  = "skipped"
)

const (
	AnchorErrorNetwork       = "NETWORK"
	AnchorErrorTimeout       = "TIMEOUT"
	AnchorErrorBadConfig     = "BAD_CONFIG"
	AnchorErrorProviderError = "PROVIDER_ERROR"
	AnchorErrorProvider5xx   = "PROVIDER_5XX"
	AnchorErrorRateLimit     = "RATE_LIMIT"
	AnchorErrorPersistence   = "PERSISTENCE"
)

type AnchorAttempt struct {
	LogID       string
	Provider    string
	Status      string
	ErrorCode   string
	TreeSize    int64
	PayloadHash string
	WitnessRef  string
	CreatedAt   time.Time
}

type AnchorAttemptRepository interface {
	Append(ctx context.Context, attempt AnchorAttempt) error
	ListByLog(ctx context.Context, logID string, limit int) ([]AnchorAttempt, error)
}
