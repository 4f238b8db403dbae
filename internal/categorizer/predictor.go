package categorizer

//go:generate mockgen -source=predictor.go -destination=predictor_mock.go -package=categorizer

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// ErrPredictorUnavailable marks a predictor failure that should degrade the
// run rather than abort it.
var ErrPredictorUnavailable = errors.New("ml predictor unavailable")

// Prediction is a model-proposed category with the model's own confidence.
type Prediction struct {
	Category   domain.Category
	Confidence float64
}

// Predictor is the ML collaborator consulted when no rule matches. Calls must
// honor ctx cancellation; the engine bounds each call with a timeout.
type Predictor interface {
	Predict(ctx context.Context, description, merchant string) (Prediction, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, description, merchant string) (Prediction, error)

// Predict implements Predictor.
func (f PredictorFunc) Predict(ctx context.Context, description, merchant string) (Prediction, error) {
	return f(ctx, description, merchant)
}

// Unavailable is a Predictor that always fails. It is used when no model is
// configured, so every unmatched transaction takes the degradation path.
var Unavailable Predictor = PredictorFunc(func(ctx context.Context, description, merchant string) (Prediction, error) {
	return Prediction{}, ErrPredictorUnavailable
})
