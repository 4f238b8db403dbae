package categorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for fallback categorization.
const DefaultModelName = "gemini-2.5-flash"

// contentGenerator is the slice of the genai client the predictor needs.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiPredictor asks a Gemini model for a category when no rule matched.
type GeminiPredictor struct {
	models contentGenerator
	model  string
	retry  RetryConfig
}

// NewGeminiPredictor creates a Gemini-backed Predictor. An empty apiKey falls
// back to the environment (GOOGLE_API_KEY or Vertex AI settings).
func NewGeminiPredictor(ctx context.Context, apiKey, model string) (*GeminiPredictor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiPredictor: create genai client: %w", err)
	}
	return newGeminiPredictor(client.Models, model), nil
}

func newGeminiPredictor(models contentGenerator, model string) *GeminiPredictor {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiPredictor{models: models, model: model, retry: DefaultGeminiRetryConfig}
}

// WithRetryConfig overrides the retry policy around each model call.
func (p *GeminiPredictor) WithRetryConfig(cfg RetryConfig) *GeminiPredictor {
	p.retry = cfg
	return p
}

type geminiAnswer struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Predict implements Predictor.
func (p *GeminiPredictor) Predict(ctx context.Context, description, merchant string) (Prediction, error) {
	temperature := float32(0)
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildCategoryPrompt(description, merchant)}},
		},
	}

	return WithRetry(ctx, p.retry, func(ctx context.Context) (Prediction, error) {
		resp, err := p.models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
			Temperature: &temperature,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return Prediction{}, Permanent(err)
			}
			return Prediction{}, fmt.Errorf("GeminiPredictor.Predict: generate content: %w", err)
		}

		raw := resp.Text()
		if raw == "" {
			return Prediction{}, fmt.Errorf("GeminiPredictor.Predict: empty response from model")
		}
		return parseAnswer(raw)
	})
}

func parseAnswer(raw string) (Prediction, error) {
	var ans geminiAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &ans); err != nil {
		return Prediction{}, Permanent(fmt.Errorf("parseAnswer: unmarshal JSON: %w\nraw response: %s", err, raw))
	}

	category, err := domain.ParseCategory(ans.Category)
	if err != nil {
		return Prediction{}, Permanent(fmt.Errorf("parseAnswer: %w", err))
	}
	return Prediction{Category: category, Confidence: clamp01(ans.Confidence)}, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
