package categorizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config.
const (
	DefaultMLTimeout   = 5 * time.Second
	DefaultConcurrency = 4
)

// Config tunes an Engine.
type Config struct {
	// MLTimeout bounds each predictor call, retries included.
	MLTimeout time.Duration
	// Concurrency is the number of transactions classified in parallel.
	Concurrency int
}

// Result summarizes one categorization run over a statement.
type Result struct {
	StatementID string `json:"statement_id"`
	// Count is the number of transactions labeled by this run.
	Count int `json:"count"`
	Rule  int `json:"rule"`
	ML    int `json:"ml"`
	// Degraded counts transactions labeled Other because the predictor was
	// unavailable. They keep that label until categorize is run again.
	Degraded int `json:"degraded"`
	// Skipped counts MANUAL transactions left untouched.
	Skipped int `json:"skipped"`
}

type outcome int

const (
	outcomeRule outcome = iota
	outcomeML
	outcomeDegraded
)

// Engine labels a statement's transactions: rules first, ML predictor second.
type Engine struct {
	repo      store.TransactionRepository
	rules     *RuleSet
	predictor Predictor
	cfg       Config
}

// NewEngine creates an Engine. A nil predictor behaves as permanently unavailable.
func NewEngine(repo store.TransactionRepository, rules *RuleSet, predictor Predictor, cfg Config) *Engine {
	if cfg.MLTimeout <= 0 {
		cfg.MLTimeout = DefaultMLTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if predictor == nil {
		predictor = Unavailable
	}
	if rules == nil {
		rules = &RuleSet{}
	}
	return &Engine{repo: repo, rules: rules, predictor: predictor, cfg: cfg}
}

// Categorize labels every non-MANUAL transaction of a statement, overwriting
// earlier automated labels. Predictor failures degrade individual
// transactions; only storage failures fail the run.
func (e *Engine) Categorize(ctx context.Context, statementID string) (Result, error) {
	log := logger.ForStatement(logger.FromContext(ctx), statementID)
	res := Result{StatementID: statementID}

	txns, err := e.repo.ListTransactions(ctx, statementID)
	if err != nil {
		return res, fmt.Errorf("Categorize: list transactions: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, t := range txns {
		if t.IsPinned() {
			res.Skipped++
			continue
		}

		t := t
		g.Go(func() error {
			a, out := e.classify(gctx, t)
			applied, err := e.repo.SaveCategorization(gctx, t.TransactionID, a)
			if err != nil {
				return fmt.Errorf("save transaction %s: %w", t.TransactionID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if !applied {
				// Overridden while this run was in flight.
				res.Skipped++
				return nil
			}
			res.Count++
			switch out {
			case outcomeRule:
				res.Rule++
			case outcomeML:
				res.ML++
			case outcomeDegraded:
				res.Degraded++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("Categorize: %w", err)
	}

	evt := log.Info()
	if res.Degraded > 0 {
		evt = log.Warn()
	}
	evt.
		Int("count", res.Count).
		Int("rule", res.Rule).
		Int("ml", res.ML).
		Int("degraded", res.Degraded).
		Int("skipped", res.Skipped).
		Msg("Categorization run finished")

	return res, nil
}

// Classify computes the assignment for one transaction without storing it.
func (e *Engine) Classify(ctx context.Context, t *domain.CategorizedTransaction) domain.Assignment {
	a, _ := e.classify(ctx, t)
	return a
}

func (e *Engine) classify(ctx context.Context, t *domain.CategorizedTransaction) (domain.Assignment, outcome) {
	if m, ok := e.rules.Match(InputOf(&t.Transaction)); ok {
		return domain.Assignment{
			Category:       m.Category,
			Confidence:     m.Confidence,
			Method:         domain.MethodRule,
			RulePrediction: m.Category,
		}, outcomeRule
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.MLTimeout)
	defer cancel()

	p, err := e.predict(pctx, t.Description, t.Merchant)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("transaction_id", t.TransactionID).
			Msg("ML predictor unavailable, labeling as Other")
		return domain.Assignment{
			Category:   domain.CategoryOther,
			Confidence: 0,
			Method:     domain.MethodML,
		}, outcomeDegraded
	}

	return domain.Assignment{
		Category:     p.Category,
		Confidence:   clamp01(p.Confidence),
		Method:       domain.MethodML,
		MLPrediction: p.Category,
	}, outcomeML
}

// predict calls the predictor but never waits past ctx, even if the
// predictor itself ignores cancellation.
func (e *Engine) predict(ctx context.Context, description, merchant string) (Prediction, error) {
	type answer struct {
		p   Prediction
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		p, err := e.predictor.Predict(ctx, description, merchant)
		ch <- answer{p: p, err: err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return Prediction{}, fmt.Errorf("%w: %w", ErrPredictorUnavailable, a.err)
		}
		if !a.p.Category.IsValid() {
			return Prediction{}, fmt.Errorf("%w: category %q outside the category set", ErrPredictorUnavailable, a.p.Category)
		}
		return a.p, nil
	case <-ctx.Done():
		return Prediction{}, fmt.Errorf("%w: %w", ErrPredictorUnavailable, ctx.Err())
	}
}

// IsDegraded reports whether t carries the label written when the predictor
// was unavailable.
func IsDegraded(t *domain.CategorizedTransaction) bool {
	return t.Method == domain.MethodML && t.Category == domain.CategoryOther && t.Confidence == 0 && t.MLPrediction == ""
}
