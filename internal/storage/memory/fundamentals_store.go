package memory

import (
	"context"
	"sync"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// FundamentalsStore is an in-memory implementation of storage.FundamentalsStore.
type FundamentalsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Fundamentals // keyed by ticker
}

// NewFundamentalsStore creates a new in-memory fundamentals store.
func NewFundamentalsStore() *FundamentalsStore {
	return &FundamentalsStore{
		data: make(map[string]*domain.Fundamentals),
	}
}

// Insert adds fundamentals. Returns ErrDuplicateKey if ticker exists.
func (s *FundamentalsStore) Insert(_ context.Context, f *domain.Fundamentals) error {
	if f == nil || f.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[f.Ticker]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[f.Ticker] = copyFundamentals(f)
	return nil
}

// GetByTicker retrieves fundamentals. Returns ErrNotFound if not exists.
func (s *FundamentalsStore) GetByTicker(_ context.Context, ticker string) (*domain.Fundamentals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.data[ticker]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyFundamentals(f), nil
}

// copyFundamentals deep-copies the pointer and slice fields.
func copyFundamentals(f *domain.Fundamentals) *domain.Fundamentals {
	out := &domain.Fundamentals{Ticker: f.Ticker}
	if f.TrailingPE != nil {
		pe := *f.TrailingPE
		out.TrailingPE = &pe
	}
	if f.Holders != nil {
		out.Holders = make([]domain.Holder, len(f.Holders))
		copy(out.Holders, f.Holders)
	}
	return out
}

var _ storage.FundamentalsStore = (*FundamentalsStore)(nil)
