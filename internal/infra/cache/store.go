// Package cache wraps a store.Store with a ristretto read cache for the
// lookups the HTTP surface repeats most: a statement, its transaction list and
// single transactions. Every write drops the keys it can affect.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/store"
)

// Config sizes the cache. Every entry costs 1, so MaxCost is an entry count.
type Config struct {
	NumCounters int64
	MaxCost     int64
}

// DefaultConfig matches a single-user deployment.
var DefaultConfig = Config{NumCounters: 10000, MaxCost: 10000}

// Store is a caching store.Store decorator.
type Store struct {
	next  store.Store
	cache *ristretto.Cache[string, any]

	// owners maps a cached transaction ID to its statement so a write to one
	// transaction can drop the statement's list entry too.
	mu     sync.RWMutex
	owners map[string]string
}

// New wraps next with a cache.
func New(next store.Store, cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 {
		cfg = DefaultConfig
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: cfg.NumCounters, // number of keys to track frequency of
		MaxCost:     cfg.MaxCost,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("cache.New: %w", err)
	}
	return &Store{next: next, cache: c, owners: make(map[string]string)}, nil
}

func statementKey(id string) string     { return "stmt:" + id }
func listKey(statementID string) string { return "txns:" + statementID }
func transactionKey(id string) string   { return "txn:" + id }

func (s *Store) set(key string, value any) {
	s.cache.Set(key, value, 1)
	s.cache.Wait()
}

func (s *Store) remember(transactionID, statementID string) {
	s.mu.Lock()
	s.owners[transactionID] = statementID
	s.mu.Unlock()
}

func (s *Store) forgetTransaction(transactionID string) {
	s.cache.Del(transactionKey(transactionID))

	s.mu.RLock()
	statementID, ok := s.owners[transactionID]
	s.mu.RUnlock()
	if ok {
		s.cache.Del(listKey(statementID))
		return
	}
	// Owner unknown: the list entries cannot be told apart, drop them all.
	s.cache.Clear()
}

// Close closes the cache and the wrapped store.
func (s *Store) Close() error {
	s.cache.Close()
	return s.next.Close()
}

// CreateStatement implements store.StatementRepository.
func (s *Store) CreateStatement(ctx context.Context, st *domain.Statement, rows []domain.RawRow) error {
	return s.next.CreateStatement(ctx, st, rows)
}

// GetStatement implements store.StatementRepository.
func (s *Store) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	if v, ok := s.cache.Get(statementKey(statementID)); ok {
		st := *v.(*domain.Statement)
		return &st, nil
	}
	st, err := s.next.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	cp := *st
	s.set(statementKey(statementID), &cp)
	return st, nil
}

// ListStatements implements store.StatementRepository. It is not cached.
func (s *Store) ListStatements(ctx context.Context) ([]*domain.Statement, error) {
	return s.next.ListStatements(ctx)
}

// StatementRows implements store.StatementRepository. Raw rows are read once
// per pipeline run and are not cached.
func (s *Store) StatementRows(ctx context.Context, statementID string) ([]domain.RawRow, error) {
	return s.next.StatementRows(ctx, statementID)
}

// UpdateStatementStatus implements store.StatementRepository.
func (s *Store) UpdateStatementStatus(ctx context.Context, statementID string, status domain.StatementStatus) error {
	defer s.cache.Del(statementKey(statementID))
	return s.next.UpdateStatementStatus(ctx, statementID, status)
}

// ImportTransactions implements store.TransactionRepository.
func (s *Store) ImportTransactions(ctx context.Context, statementID string, txns []*domain.Transaction) (int, error) {
	defer s.cache.Del(listKey(statementID))
	return s.next.ImportTransactions(ctx, statementID, txns)
}

// CountTransactions implements store.TransactionRepository.
func (s *Store) CountTransactions(ctx context.Context, statementID string) (int, error) {
	return s.next.CountTransactions(ctx, statementID)
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error) {
	if v, ok := s.cache.Get(listKey(statementID)); ok {
		return copyTransactions(v.([]*domain.CategorizedTransaction)), nil
	}
	txns, err := s.next.ListTransactions(ctx, statementID)
	if err != nil {
		return nil, err
	}
	for _, t := range txns {
		s.remember(t.TransactionID, statementID)
	}
	s.set(listKey(statementID), copyTransactions(txns))
	return txns, nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.CategorizedTransaction, error) {
	if v, ok := s.cache.Get(transactionKey(transactionID)); ok {
		t := *v.(*domain.CategorizedTransaction)
		return &t, nil
	}
	t, err := s.next.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	s.remember(transactionID, t.StatementID)
	cp := *t
	s.set(transactionKey(transactionID), &cp)
	return t, nil
}

// SaveCategorization implements store.TransactionRepository.
func (s *Store) SaveCategorization(ctx context.Context, transactionID string, a domain.Assignment) (bool, error) {
	applied, err := s.next.SaveCategorization(ctx, transactionID, a)
	if applied {
		s.forgetTransaction(transactionID)
	}
	return applied, err
}

// SetManualCategory implements store.TransactionRepository.
func (s *Store) SetManualCategory(ctx context.Context, transactionID string, category domain.Category) error {
	defer s.forgetTransaction(transactionID)
	return s.next.SetManualCategory(ctx, transactionID, category)
}

func copyTransactions(in []*domain.CategorizedTransaction) []*domain.CategorizedTransaction {
	out := make([]*domain.CategorizedTransaction, len(in))
	for i, t := range in {
		cp := *t
		out[i] = &cp
	}
	return out
}

var _ store.Store = (*Store)(nil)
