package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/importer"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/override"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"github.com/google/uuid"
)

// Archiver keeps a copy of the original uploaded file and returns its URI.
type Archiver interface {
	ArchiveStatement(ctx context.Context, statementID, filename string, data []byte) (string, error)
}

// Service is the statement workflow: upload, preview, import, categorize,
// list and override.
type Service struct {
	store     store.Store
	importer  *importer.Importer
	engine    *categorizer.Engine
	overrides *override.Reconciler
	archiver  Archiver
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArchiver archives every upload that carries the original file bytes.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// NewService wires the workflow around one store and categorization engine.
func NewService(st store.Store, engine *categorizer.Engine, opts ...Option) *Service {
	s := &Service{
		store:     st,
		importer:  importer.New(st),
		engine:    engine,
		overrides: override.NewReconciler(st),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload describes a statement handed to the service. Rows without a
// row_number are numbered by position. Raw, when set, is archived.
type Upload struct {
	Bank     string
	Filename string
	Rows     []domain.RawRow
	Raw      []byte
}

// Preview is the operator's view of a statement before import.
type Preview struct {
	StatementID  string                `json:"statement_id"`
	Bank         domain.Bank           `json:"bank"`
	Total        int                   `json:"total"`
	Valid        int                   `json:"valid"`
	Rejected     int                   `json:"rejected"`
	Repaired     int                   `json:"repaired"`
	Unanchored   bool                  `json:"unanchored"`
	Preview      []domain.ValidatedRow `json:"preview"`
	RejectedRows []domain.ValidatedRow `json:"rejected_rows"`
}

// Upload creates a statement from already extracted rows.
func (s *Service) Upload(ctx context.Context, up Upload) (*domain.Statement, error) {
	if len(up.Rows) == 0 {
		return nil, &domain.Error{Code: domain.CodeInvalidInput, Message: "statement has no rows"}
	}

	rows := NumberRows(up.Rows)
	if dups := duplicateRowNumbers(rows); len(dups) > 0 {
		return nil, &domain.Error{
			Code:    domain.CodeInvalidInput,
			Message: fmt.Sprintf("row_number used more than once: %v", dups),
		}
	}

	bank, err := s.resolveBank(up.Bank, up.Filename, rows)
	if err != nil {
		return nil, err
	}

	st := &domain.Statement{
		StatementID:    uuid.NewString(),
		Bank:           bank,
		RowCount:       len(rows),
		CreatedAt:      s.now(),
		SourceFilename: up.Filename,
		Status:         domain.StatementUploaded,
	}

	if s.archiver != nil && len(up.Raw) > 0 {
		uri, err := s.archiver.ArchiveStatement(ctx, st.StatementID, up.Filename, up.Raw)
		if err != nil {
			return nil, fmt.Errorf("Upload: archive original: %w", err)
		}
		st.ArchiveURI = uri
	}

	if err := s.store.CreateStatement(ctx, st, rows); err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}

	log := logger.ForStatement(logger.FromContext(ctx), st.StatementID)
	log.Info().
		Str("bank", string(st.Bank)).
		Int("rows", st.RowCount).
		Str("filename", st.SourceFilename).
		Msg("Statement uploaded")

	return st, nil
}

// UploadCSV reads a CSV statement and uploads it. An empty bank is detected
// from the filename and header.
func (s *Service) UploadCSV(ctx context.Context, bank, filename string, r io.Reader) (*domain.Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("UploadCSV: read: %w", err)
	}

	parsed, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.Error{Code: domain.CodeInvalidInput, Message: "unreadable CSV statement", Cause: err}
	}

	if bank == "" {
		bank = string(DetectBank(filename, parsed.Header))
	}

	return s.Upload(ctx, Upload{Bank: bank, Filename: filename, Rows: parsed.Rows, Raw: data})
}

func (s *Service) resolveBank(name, filename string, rows []domain.RawRow) (domain.Bank, error) {
	if name != "" {
		return domain.ParseBank(name)
	}
	texts := []string{filename}
	for i := 0; i < len(rows) && i < 5; i++ {
		texts = append(texts, rows[i].Description)
	}
	return DetectBank(texts...), nil
}

// Statement returns statement metadata.
func (s *Service) Statement(ctx context.Context, statementID string) (*domain.Statement, error) {
	st, err := s.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, notFoundOr(err, "statement", statementID)
	}
	return st, nil
}

// Statements lists every statement, newest first.
func (s *Service) Statements(ctx context.Context) ([]*domain.Statement, error) {
	return s.store.ListStatements(ctx)
}

// Preview validates and reconciles a statement without importing it.
func (s *Service) Preview(ctx context.Context, statementID string) (*Preview, error) {
	state := &PipelineState{StatementID: statementID}
	p := NewPipeline(
		&LoadStatementStep{Store: s.store},
		&PrepareRowsStep{},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}

	pv := &Preview{
		StatementID:  statementID,
		Bank:         state.Statement.Bank,
		Total:        len(state.Rows),
		Repaired:     state.Reconcile.Repaired,
		Unanchored:   state.Reconcile.Unanchored,
		Preview:      []domain.ValidatedRow{},
		RejectedRows: []domain.ValidatedRow{},
	}
	for _, row := range state.Rows {
		if row.Valid() {
			pv.Valid++
			if len(pv.Preview) < PreviewSize {
				pv.Preview = append(pv.Preview, row)
			}
			continue
		}
		pv.Rejected++
		pv.RejectedRows = append(pv.RejectedRows, row)
	}

	rejectRate := 0.0
	if pv.Total > 0 {
		rejectRate = float64(pv.Rejected) / float64(pv.Total)
	}
	log := logger.ForStatement(logger.FromContext(ctx), statementID)
	log.Info().
		Str("bank", string(pv.Bank)).
		Int("total", pv.Total).
		Int("valid", pv.Valid).
		Int("rejects", pv.Rejected).
		Float64("reject_rate", rejectRate).
		Msg("Statement previewed")

	return pv, nil
}

// Import validates, reconciles and imports a statement.
func (s *Service) Import(ctx context.Context, statementID string) (importer.Result, error) {
	state := &PipelineState{StatementID: statementID}
	p := NewPipeline(
		&LoadStatementStep{Store: s.store},
		&PrepareRowsStep{},
		&ImportStep{Importer: s.importer},
		&MarkStatusStep{Store: s.store, Status: domain.StatementImported},
	)
	if err := p.Execute(ctx, state); err != nil {
		return importer.Result{StatementID: statementID}, err
	}
	return *state.Imported, nil
}

// Categorize runs the categorization engine over an imported statement.
func (s *Service) Categorize(ctx context.Context, statementID string) (categorizer.Result, error) {
	state := &PipelineState{StatementID: statementID}
	p := NewPipeline(
		&LoadStatementStep{Store: s.store},
		&CategorizeStep{Engine: s.engine},
		&MarkStatusStep{Store: s.store, Status: domain.StatementCategorized},
	)
	if err := p.Execute(ctx, state); err != nil {
		return categorizer.Result{StatementID: statementID}, err
	}
	return *state.Categorized, nil
}

// Process imports and categorizes a statement in one pass.
func (s *Service) Process(ctx context.Context, statementID string) (*PipelineState, error) {
	state := &PipelineState{StatementID: statementID}
	p := NewPipeline(
		&LoadStatementStep{Store: s.store},
		&PrepareRowsStep{},
		&ImportStep{Importer: s.importer},
		&MarkStatusStep{Store: s.store, Status: domain.StatementImported},
		&CategorizeStep{Engine: s.engine},
		&MarkStatusStep{Store: s.store, Status: domain.StatementCategorized},
	)
	if err := p.Execute(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// Transactions lists the categorized ledger of a statement.
func (s *Service) Transactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error) {
	if _, err := s.Statement(ctx, statementID); err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactions(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("Transactions: %w", err)
	}
	if txns == nil {
		txns = []*domain.CategorizedTransaction{}
	}
	return txns, nil
}

// Override pins a manually chosen category on one transaction.
func (s *Service) Override(ctx context.Context, transactionID, category string) (*domain.CategorizedTransaction, error) {
	return s.overrides.Override(ctx, transactionID, category)
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		e := domain.NotFound(kind, id)
		e.Cause = err
		return e
	}
	return err
}
