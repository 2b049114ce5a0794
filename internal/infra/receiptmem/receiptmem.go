// Package receiptmem stores consent receipts in memory. It backs the
// no-db deployment mode the same way logmem backs the log engine.
package receiptmem

import (
	"context"
	"sync"

	"trustpack/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	receipts map[string]domain.ConsentReceipt
}

func New() *Store {
	return &Store{receipts: make(map[string]domain.ConsentReceipt)}
}

func (s *Store) Save(_ context.Context, receipt domain.ConsentReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receipt.ID] = cloneReceipt(receipt)
	return nil
}

func (s *Store) Update(_ context.Context, receipt domain.ConsentReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[receipt.ID]; !ok {
		return domain.ErrNotFound
	}
	s.receipts[receipt.ID] = cloneReceipt(receipt)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.ConsentReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneReceipt(receipt)
	return &out, nil
}

func (s *Store) ListByRP(_ context.Context, rpIdentifier string) ([]domain.ConsentReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ConsentReceipt, 0)
	for _, receipt := range s.receipts {
		if receipt.RPIdentifier == rpIdentifier {
			out = append(out, cloneReceipt(receipt))
		}
	}
	return out, nil
}

func cloneReceipt(receipt domain.ConsentReceipt) domain.ConsentReceipt {
	out := receipt
	out.Predicates = append([]domain.Predicate(nil), receipt.Predicates...)
	out.Signature = append([]byte(nil), receipt.Signature...)
	if receipt.TransparencyLogEntry != nil {
		entry := *receipt.TransparencyLogEntry
		if receipt.TransparencyLogEntry.InclusionProof != nil {
			proof := *receipt.TransparencyLogEntry.InclusionProof
			entry.InclusionProof = &proof
		}
		if receipt.TransparencyLogEntry.VerifiedAt != nil {
			at := *receipt.TransparencyLogEntry.VerifiedAt
			entry.VerifiedAt = &at
		}
		out.TransparencyLogEntry = &entry
	}
	return out
}
