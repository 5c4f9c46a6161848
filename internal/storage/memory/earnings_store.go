package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// EarningsStore is an in-memory implementation of storage.EarningsStore.
type EarningsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EarningsRecord // keyed by (ticker, report_date)
}

// NewEarningsStore creates a new in-memory earnings store.
func NewEarningsStore() *EarningsStore {
	return &EarningsStore{
		data: make(map[string]*domain.EarningsRecord),
	}
}

func earningsKey(r *domain.EarningsRecord) string {
	return fmt.Sprintf("%s|%s", r.Ticker, r.ReportDate.Format(domain.DateLayout))
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *EarningsStore) InsertBulk(_ context.Context, records []*domain.EarningsRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Ticker == "" || r.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
		key := earningsKey(r)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range records {
		recCopy := *r
		recCopy.ReportDate = domain.Day(r.ReportDate)
		s.data[earningsKey(r)] = &recCopy
	}

	return nil
}

// GetByTicker retrieves all records for a ticker, ordered by report_date ASC.
func (s *EarningsStore) GetByTicker(_ context.Context, ticker string) ([]*domain.EarningsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EarningsRecord
	for _, r := range s.data {
		if r.Ticker == ticker {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ReportDate.Before(result[j].ReportDate)
	})

	return result, nil
}

var _ storage.EarningsStore = (*EarningsStore)(nil)
