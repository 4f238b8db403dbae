// Package postgres is the PostgreSQL Store, built on a pgx connection pool.
// The schema lives in migrations/postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Connect: ping: %w", err)
	}
	return pool, nil
}

// NewStore connects to url and returns a Store owning the pool.
func NewStore(ctx context.Context, url string) (*Store, error) {
	pool, err := Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool wraps an existing pool.
func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateStatement implements store.StatementRepository. The statement and its
// raw rows are written in one transaction.
func (s *Store) CreateStatement(ctx context.Context, st *domain.Statement, rows []domain.RawRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("CreateStatement: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO statements (statement_id, bank, row_count, created_at, source_filename, archive_uri, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, st.StatementID, st.Bank, st.RowCount, st.CreatedAt, st.SourceFilename, st.ArchiveURI, st.Status)
	if err != nil {
		return fmt.Errorf("CreateStatement: insert statement: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"statement_rows"},
		[]string{"statement_id", "row_number", "raw_date", "description", "debit", "credit", "balance", "amount"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{st.StatementID, r.RowNumber, r.Date, r.Description, r.Debit, r.Credit, r.Balance, r.Amount}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("CreateStatement: copy rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("CreateStatement: commit: %w", err)
	}
	return nil
}

const statementColumns = `statement_id, bank, row_count, created_at, source_filename, archive_uri, status`

func scanStatement(row pgx.Row) (*domain.Statement, error) {
	var st domain.Statement
	err := row.Scan(&st.StatementID, &st.Bank, &st.RowCount, &st.CreatedAt, &st.SourceFilename, &st.ArchiveURI, &st.Status)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStatement implements store.StatementRepository.
func (s *Store) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	st, err := scanStatement(s.pool.QueryRow(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE statement_id = $1`, statementID))
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %s: %w", statementID, notFound(err))
	}
	return st, nil
}

// ListStatements implements store.StatementRepository.
func (s *Store) ListStatements(ctx context.Context) ([]*domain.Statement, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+statementColumns+` FROM statements ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: %w", err)
	}
	defer rows.Close()

	var out []*domain.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStatements: scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StatementRows implements store.StatementRepository.
func (s *Store) StatementRows(ctx context.Context, statementID string) ([]domain.RawRow, error) {
	if _, err := s.GetStatement(ctx, statementID); err != nil {
		return nil, fmt.Errorf("StatementRows: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT row_number, raw_date, description, debit, credit, balance, amount
		FROM statement_rows
		WHERE statement_id = $1
		ORDER BY row_number
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("StatementRows: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRow
	for rows.Next() {
		var r domain.RawRow
		if err := rows.Scan(&r.RowNumber, &r.Date, &r.Description, &r.Debit, &r.Credit, &r.Balance, &r.Amount); err != nil {
			return nil, fmt.Errorf("StatementRows: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatementStatus implements store.StatementRepository.
func (s *Store) UpdateStatementStatus(ctx context.Context, statementID string, status domain.StatementStatus) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE statements SET status = $1 WHERE statement_id = $2`, status, statementID)
	if err != nil {
		return fmt.Errorf("UpdateStatementStatus: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("UpdateStatementStatus: %s: %w", statementID, store.ErrNotFound)
	}
	return nil
}

// ImportTransactions implements store.TransactionRepository. Imports of one
// statement are serialized by a transaction-scoped advisory lock, and the
// unique (statement_id, row_number) constraint turns repeats into no-ops.
func (s *Store) ImportTransactions(ctx context.Context, statementID string, txns []*domain.Transaction) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ImportTransactions: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, statementID); err != nil {
		return 0, fmt.Errorf("ImportTransactions: lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM statements WHERE statement_id = $1)`, statementID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("ImportTransactions: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("ImportTransactions: %s: %w", statementID, store.ErrNotFound)
	}

	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(`
			INSERT INTO transactions (
				transaction_id, statement_id, row_number, txn_date, description,
				debit, credit, balance, merchant, is_repaired, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11)
			ON CONFLICT (statement_id, row_number) DO NOTHING
		`, t.TransactionID, statementID, t.RowNumber, dateValue(t.Date), t.Description,
			numeric(t.Debit), numeric(t.Credit), numeric(t.Balance), t.Merchant, t.IsRepaired, t.CreatedAt)
	}

	inserted := 0
	br := tx.SendBatch(ctx, batch)
	for range txns {
		cmd, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("ImportTransactions: insert: %w", err)
		}
		inserted += int(cmd.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("ImportTransactions: batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ImportTransactions: commit: %w", err)
	}
	return inserted, nil
}

// CountTransactions implements store.TransactionRepository.
func (s *Store) CountTransactions(ctx context.Context, statementID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE statement_id = $1`, statementID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountTransactions: %w", err)
	}
	return n, nil
}

const transactionColumns = `
	transaction_id, statement_id, row_number, txn_date, description,
	debit::text, credit::text, balance::text, merchant, is_repaired, created_at,
	category, confidence, method, rule_prediction, ml_prediction, categorized_at`

func scanTransaction(row pgx.Row) (*domain.CategorizedTransaction, error) {
	var (
		t                             domain.CategorizedTransaction
		date                          time.Time
		debit, credit, balance        *string
		category, method, rule, model *string
		confidence                    *float64
	)
	err := row.Scan(
		&t.TransactionID, &t.StatementID, &t.RowNumber, &date, &t.Description,
		&debit, &credit, &balance, &t.Merchant, &t.IsRepaired, &t.CreatedAt,
		&category, &confidence, &method, &rule, &model, &t.CategorizedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Date = civil.DateOf(date)
	if t.Debit, err = rat(debit); err != nil {
		return nil, err
	}
	if t.Credit, err = rat(credit); err != nil {
		return nil, err
	}
	if t.Balance, err = rat(balance); err != nil {
		return nil, err
	}
	t.Category = domain.Category(deref(category))
	t.Method = domain.Method(deref(method))
	t.RulePrediction = domain.Category(deref(rule))
	t.MLPrediction = domain.Category(deref(model))
	if confidence != nil {
		t.Confidence = *confidence
	}
	return &t, nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE statement_id = $1 ORDER BY row_number`, statementID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.CategorizedTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.CategorizedTransaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, transactionID))
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %s: %w", transactionID, notFound(err))
	}
	return t, nil
}

// SaveCategorization implements store.TransactionRepository. The MANUAL guard
// sits in the WHERE clause, so an override committed first always wins.
func (s *Store) SaveCategorization(ctx context.Context, transactionID string, a domain.Assignment) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET category = $2, confidence = $3, method = $4,
		    rule_prediction = NULLIF($5, ''), ml_prediction = NULLIF($6, ''),
		    categorized_at = NOW()
		WHERE transaction_id = $1
		  AND method IS DISTINCT FROM 'MANUAL'
	`, transactionID, a.Category, a.Confidence, a.Method, string(a.RulePrediction), string(a.MLPrediction))
	if err != nil {
		return false, fmt.Errorf("SaveCategorization: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.GetTransaction(ctx, transactionID); err != nil {
		return false, fmt.Errorf("SaveCategorization: %w", err)
	}
	return false, nil
}

// SetManualCategory implements store.TransactionRepository.
func (s *Store) SetManualCategory(ctx context.Context, transactionID string, category domain.Category) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET category = $2, confidence = $3, method = $4, categorized_at = NOW()
		WHERE transaction_id = $1
	`, transactionID, category, domain.ManualConfidence, domain.MethodManual)
	if err != nil {
		return fmt.Errorf("SetManualCategory: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("SetManualCategory: %s: %w", transactionID, store.ErrNotFound)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func numeric(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := domain.DecimalString(r)
	return &s
}

func rat(s *string) (*big.Rat, error) {
	if s == nil {
		return nil, nil
	}
	return domain.ParseAmount(*s)
}

func dateValue(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ store.Store = (*Store)(nil)
