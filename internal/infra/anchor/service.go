package anchor

import (
	"context"
	"errors"
	"time"

	"trustpack/internal/domain"
)

// Provider is a single external witness backend.
type Provider interface {
	ProviderName() string
	Anchor(ctx context.Context, payload Payload) domain.AnchorAttempt
}

type Service struct {
	provider Provider
	attempts domain.AnchorAttemptRepository
	timeout  time.Duration
	now      func() time.Time
}

func NewService(provider Provider, attempts domain.AnchorAttemptRepository, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		provider: provider,
		attempts: attempts,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (s *Service) AnchorSTH(ctx context.Context, sth domain.STH) (domain.AnchorAttempt, error) {
	if s == nil {
		return domain.AnchorAttempt{}, errors.New("anchor service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := BuildPayload(sth)
	if err != nil {
		return domain.AnchorAttempt{}, err
	}
	if s.provider == nil {
		attempt := domain.AnchorAttempt{
			LogID:       sth.LogID,
			Provider:    "none",
			Status:      domain.AnchorStatusSkipped,
			TreeSize:    sth.TreeSize,
			PayloadHash: payload.HashHex,
			CreatedAt:   s.now().UTC(),
		}
		return s.persistAttempt(ctx, attempt), nil
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	attempt := s.provider.Anchor(providerCtx, payload)
	deadlineHit := providerCtx.Err() == context.DeadlineExceeded
	cancel()

	if attempt.Provider == "" {
		attempt.Provider = s.provider.ProviderName()
	}
	if attempt.Status == "" {
		attempt.Status = domain.AnchorStatusAnchored
	}
	if deadlineHit {
		attempt.Status = domain.AnchorStatusFailed
		if attempt.ErrorCode == "" {
			attempt.ErrorCode = domain.AnchorErrorTimeout
		}
	}
	attempt.LogID = sth.LogID
	attempt.TreeSize = sth.TreeSize
	attempt.PayloadHash = payload.HashHex
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now().UTC()
	}
	return s.persistAttempt(ctx, attempt), nil
}

func (s *Service) persistAttempt(ctx context.Context, attempt domain.AnchorAttempt) domain.AnchorAttempt {
	if s.attempts == nil {
		return attempt
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		attempt.Status = domain.AnchorStatusFailed
		attempt.ErrorCode = domain.AnchorErrorPersistence
	}
	return attempt
}
