// Package llm constructs the language models the assistant runs on, one
// per role.
package llm

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultModel = "gpt-4o"

// Models groups the per-role model handles.
type Models struct {
	// Planner drives tool selection. Deterministic.
	Planner llms.Model

	// Reasoning handles the JSON-producing analysis steps (category
	// discovery, classification, record extraction).
	Reasoning llms.Model

	// SQL generates raw SQL text.
	SQL llms.Model

	// Final synthesizes user-facing answers, with a slightly higher
	// temperature for more natural phrasing.
	Final llms.Model

	// Embedding vectorizes chunks and queries.
	Embedding chromem.EmbeddingFunc
}

// New builds the model set against the OpenAI API.
func New(apiKey string) (*Models, error) {
	planner, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create planner model: %w", err)
	}

	reasoning, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(defaultModel),
		openai.WithResponseFormat(openai.ResponseFormatJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning model: %w", err)
	}

	sqlModel, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQL model: %w", err)
	}

	final, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create final-answer model: %w", err)
	}

	return &Models{
		Planner:   withTemperature(planner, 0),
		Reasoning: withTemperature(reasoning, 0),
		SQL:       withTemperature(sqlModel, 0),
		Final:     withTemperature(final, 0.7),
		Embedding: chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI3Large),
	}, nil
}

// temperedModel pins a temperature onto every GenerateContent call so
// callers don't have to carry it.
type temperedModel struct {
	inner       llms.Model
	temperature float64
}

func withTemperature(model llms.Model, temperature float64) llms.Model {
	return &temperedModel{inner: model, temperature: temperature}
}

func (m *temperedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := append([]llms.CallOption{llms.WithTemperature(m.temperature)}, options...)
	return m.inner.GenerateContent(ctx, messages, opts...)
}

func (m *temperedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	opts := append([]llms.CallOption{llms.WithTemperature(m.temperature)}, options...)
	return m.inner.Call(ctx, prompt, opts...)
}
