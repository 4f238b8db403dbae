// Package memory is an in-process Store used by tests, the CLI's dry runs and
// single-instance deployments. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/store"
)

type rowKey struct {
	statementID string
	rowNumber   int
}

// Store keeps statements and transactions in maps guarded by one RWMutex.
// Returned values are copies, so callers cannot mutate stored state.
type Store struct {
	mu           sync.RWMutex
	statements   map[string]*domain.Statement
	rawRows      map[string][]domain.RawRow
	transactions map[string]*domain.CategorizedTransaction
	byRow        map[rowKey]string

	// failImport, when set, makes ImportTransactions fail after staging rows.
	// It exists so tests can exercise the all-or-nothing path.
	failImport func(statementID string) error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		statements:   make(map[string]*domain.Statement),
		rawRows:      make(map[string][]domain.RawRow),
		transactions: make(map[string]*domain.CategorizedTransaction),
		byRow:        make(map[rowKey]string),
	}
}

// FailImportWith installs a hook that fails imports. Pass nil to clear it.
func (s *Store) FailImportWith(fn func(statementID string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failImport = fn
}

// CreateStatement implements store.StatementRepository.
func (s *Store) CreateStatement(ctx context.Context, st *domain.Statement, rows []domain.RawRow) error {
	if st.StatementID == "" {
		return fmt.Errorf("CreateStatement: statement ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.statements[st.StatementID]; exists {
		return fmt.Errorf("CreateStatement: statement %s already exists", st.StatementID)
	}
	stCopy := *st
	s.statements[st.StatementID] = &stCopy
	s.rawRows[st.StatementID] = append([]domain.RawRow(nil), rows...)
	return nil
}

// GetStatement implements store.StatementRepository.
func (s *Store) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statements[statementID]
	if !ok {
		return nil, fmt.Errorf("GetStatement: %s: %w", statementID, store.ErrNotFound)
	}
	stCopy := *st
	return &stCopy, nil
}

// ListStatements implements store.StatementRepository.
func (s *Store) ListStatements(ctx context.Context) ([]*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Statement, 0, len(s.statements))
	for _, st := range s.statements {
		stCopy := *st
		result = append(result, &stCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// StatementRows implements store.StatementRepository.
func (s *Store) StatementRows(ctx context.Context, statementID string) ([]domain.RawRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.rawRows[statementID]
	if !ok {
		return nil, fmt.Errorf("StatementRows: %s: %w", statementID, store.ErrNotFound)
	}
	out := append([]domain.RawRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

// UpdateStatementStatus implements store.StatementRepository.
func (s *Store) UpdateStatementStatus(ctx context.Context, statementID string, status domain.StatementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return fmt.Errorf("UpdateStatementStatus: %s: %w", statementID, store.ErrNotFound)
	}
	st.Status = status
	return nil
}

// ImportTransactions implements store.TransactionRepository. Rows are staged
// first and committed under the same lock, so a failure leaves nothing behind
// and concurrent imports of one statement cannot double-insert.
func (s *Store) ImportTransactions(ctx context.Context, statementID string, txns []*domain.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statements[statementID]; !ok {
		return 0, fmt.Errorf("ImportTransactions: %s: %w", statementID, store.ErrNotFound)
	}

	staged := make([]*domain.CategorizedTransaction, 0, len(txns))
	seen := make(map[int]bool, len(txns))
	for _, t := range txns {
		key := rowKey{statementID: statementID, rowNumber: t.RowNumber}
		if _, exists := s.byRow[key]; exists || seen[t.RowNumber] {
			continue
		}
		seen[t.RowNumber] = true
		tCopy := *t
		tCopy.StatementID = statementID
		staged = append(staged, &domain.CategorizedTransaction{Transaction: tCopy})
	}

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("ImportTransactions: %w", err)
	}
	if s.failImport != nil {
		if err := s.failImport(statementID); err != nil {
			return 0, fmt.Errorf("ImportTransactions: %w", err)
		}
	}

	for _, t := range staged {
		s.transactions[t.TransactionID] = t
		s.byRow[rowKey{statementID: statementID, rowNumber: t.RowNumber}] = t.TransactionID
	}
	return len(staged), nil
}

// CountTransactions implements store.TransactionRepository.
func (s *Store) CountTransactions(ctx context.Context, statementID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.byRow {
		if key.statementID == statementID {
			count++
		}
	}
	return count, nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CategorizedTransaction
	for key, id := range s.byRow {
		if key.statementID != statementID {
			continue
		}
		tCopy := *s.transactions[id]
		result = append(result, &tCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RowNumber < result[j].RowNumber })
	return result, nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.CategorizedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("GetTransaction: %s: %w", transactionID, store.ErrNotFound)
	}
	tCopy := *t
	return &tCopy, nil
}

// SaveCategorization implements store.TransactionRepository.
func (s *Store) SaveCategorization(ctx context.Context, transactionID string, a domain.Assignment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[transactionID]
	if !ok {
		return false, fmt.Errorf("SaveCategorization: %s: %w", transactionID, store.ErrNotFound)
	}
	if t.IsPinned() {
		return false, nil
	}

	now := time.Now().UTC()
	t.Category = a.Category
	t.Confidence = a.Confidence
	t.Method = a.Method
	t.RulePrediction = a.RulePrediction
	t.MLPrediction = a.MLPrediction
	t.CategorizedAt = &now
	return true, nil
}

// SetManualCategory implements store.TransactionRepository.
func (s *Store) SetManualCategory(ctx context.Context, transactionID string, category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[transactionID]
	if !ok {
		return fmt.Errorf("SetManualCategory: %s: %w", transactionID, store.ErrNotFound)
	}

	now := time.Now().UTC()
	t.Category = category
	t.Confidence = domain.ManualConfidence
	t.Method = domain.MethodManual
	t.CategorizedAt = &now
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}

var _ store.Store = (*Store)(nil)
