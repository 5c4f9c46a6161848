package memory

import (
	"context"
	"sort"
	"sync"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Transaction // keyed by run_id, simulation order
	ids  map[string]struct{}             // transaction IDs across all runs
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[string][]domain.Transaction),
		ids:  make(map[string]struct{}),
	}
}

// InsertBulk adds the transaction log of a run atomically. Fails entire batch on any duplicate ID.
func (s *TransactionStore) InsertBulk(_ context.Context, runID string, txns []*domain.Transaction) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(txns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(txns))
	for _, t := range txns {
		if t == nil || t.ID == "" || !t.Type.Valid() {
			return storage.ErrInvalidInput
		}
		key := runID + "|" + t.ID
		if _, exists := s.ids[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range txns {
		s.data[runID] = append(s.data[runID], *t)
		s.ids[runID+"|"+t.ID] = struct{}{}
	}

	return nil
}

// GetByRunID retrieves the transaction log of a run in simulation order.
func (s *TransactionStore) GetByRunID(_ context.Context, runID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[runID]
	result := make([]*domain.Transaction, 0, len(stored))
	for i := range stored {
		txnCopy := stored[i]
		result = append(result, &txnCopy)
	}
	return result, nil
}

// RoundTripStore is an in-memory implementation of storage.RoundTripStore.
type RoundTripStore struct {
	mu   sync.RWMutex
	data map[string][]domain.RoundTripRecord // keyed by run_id, insertion order
}

// NewRoundTripStore creates a new in-memory round trip store.
func NewRoundTripStore() *RoundTripStore {
	return &RoundTripStore{
		data: make(map[string][]domain.RoundTripRecord),
	}
}

// InsertBulk adds round trip records of a run atomically. Fails entire batch on any duplicate ID.
func (s *RoundTripStore) InsertBulk(_ context.Context, runID string, records []*domain.RoundTripRecord) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.data[runID])+len(records))
	for _, r := range s.data[runID] {
		existing[r.RoundTripID] = struct{}{}
	}
	for _, r := range records {
		if r == nil || r.RoundTripID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := existing[r.RoundTripID]; exists {
			return storage.ErrDuplicateKey
		}
		existing[r.RoundTripID] = struct{}{}
	}

	for _, r := range records {
		s.data[runID] = append(s.data[runID], *copyRoundTrip(r))
	}

	return nil
}

// GetByRunID retrieves round trip records of a run in insertion order.
func (s *RoundTripStore) GetByRunID(_ context.Context, runID string) ([]*domain.RoundTripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[runID]
	result := make([]*domain.RoundTripRecord, 0, len(stored))
	for i := range stored {
		result = append(result, copyRoundTrip(&stored[i]))
	}
	return result, nil
}

func copyRoundTrip(r *domain.RoundTripRecord) *domain.RoundTripRecord {
	recCopy := *r
	if r.ExitDate != nil {
		exit := *r.ExitDate
		recCopy.ExitDate = &exit
	}
	return &recCopy
}

// EquityStore is an in-memory implementation of storage.EquityStore.
type EquityStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.EquityPoint // run_id -> unix day -> point
}

// NewEquityStore creates a new in-memory equity store.
func NewEquityStore() *EquityStore {
	return &EquityStore{
		data: make(map[string]map[int64]domain.EquityPoint),
	}
}

// InsertBulk adds the equity curve of a run. Fails entire batch on duplicate (run_id, date).
func (s *EquityStore) InsertBulk(_ context.Context, runID string, points []domain.EquityPoint) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.data[runID]
	batchKeys := make(map[int64]struct{}, len(points))
	for _, p := range points {
		if p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := domain.Day(p.Date).Unix()
		if _, exists := run[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	if run == nil {
		run = make(map[int64]domain.EquityPoint, len(points))
		s.data[runID] = run
	}
	for _, p := range points {
		p.Date = domain.Day(p.Date)
		run[p.Date.Unix()] = p
	}

	return nil
}

// GetByRunID retrieves the equity curve of a run, ordered by date ASC.
func (s *EquityStore) GetByRunID(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := s.data[runID]
	result := make([]domain.EquityPoint, 0, len(run))
	for _, p := range run {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

var (
	_ storage.TransactionStore = (*TransactionStore)(nil)
	_ storage.RoundTripStore   = (*RoundTripStore)(nil)
	_ storage.EquityStore      = (*EquityStore)(nil)
)
