// Package generation produces answers over retrieved context.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/retrieval"
)

const systemInstruction = "You are a helpful assistant. Answer the question using only the " +
	"numbered sources below. If the sources do not contain the answer, say so."

const ungroundedInstruction = "You are a helpful assistant. No relevant sources were found " +
	"for this question, so answer from general knowledge and say that the answer is not " +
	"based on the document corpus."

// Params tunes a single generation. Nil Temperature and MaxTokens fall
// back to the configured defaults; TopK and SimilarityThreshold pass
// through to retrieval, where a nil threshold means the configured
// default and an explicit zero disables threshold filtering.
type Params struct {
	Temperature         *float64
	MaxTokens           *int
	TopK                int
	SimilarityThreshold *float64
	Filters             map[string]string
}

type Generator struct {
	manager   *providers.Manager
	retriever *retrieval.Retriever

	defaultTemperature float64
	defaultMaxTokens   int
}

func NewGenerator(manager *providers.Manager, retriever *retrieval.Retriever, defaultTemperature float64, defaultMaxTokens int) *Generator {
	return &Generator{
		manager:            manager,
		retriever:          retriever,
		defaultTemperature: defaultTemperature,
		defaultMaxTokens:   defaultMaxTokens,
	}
}

// Answer retrieves context for the query and generates over it. When
// retrieval finds nothing, or the backend is unreachable, the answer
// degrades to an ungrounded response instead of failing.
func (g *Generator) Answer(ctx context.Context, query string, p Params) (models.GenerationResult, error) {
	temperature, maxTokens, err := g.resolve(p)
	if err != nil {
		return models.GenerationResult{}, err
	}
	sources, err := g.retriever.Search(ctx, query, retrieval.SearchParams{
		TopK:                p.TopK,
		SimilarityThreshold: p.SimilarityThreshold,
		Filters:             p.Filters,
	})
	if err != nil {
		var cfgErr *ragerr.ConfigurationError
		if errors.As(err, &cfgErr) {
			return models.GenerationResult{}, err
		}
		// Retrieval infrastructure failure: answer anyway, ungrounded.
		sources = nil
	}
	return g.generate(ctx, query, sources, temperature, maxTokens)
}

// AnswerWithSources generates over caller-provided context, skipping
// retrieval. An empty slice is honored as "no context" and produces an
// ungrounded answer.
func (g *Generator) AnswerWithSources(ctx context.Context, query string, sources []models.SearchResult, p Params) (models.GenerationResult, error) {
	temperature, maxTokens, err := g.resolve(p)
	if err != nil {
		return models.GenerationResult{}, err
	}
	if strings.TrimSpace(query) == "" {
		return models.GenerationResult{}, &ragerr.ConfigurationError{Reason: "query must not be empty"}
	}
	return g.generate(ctx, query, sources, temperature, maxTokens)
}

func (g *Generator) generate(ctx context.Context, query string, sources []models.SearchResult, temperature float64, maxTokens int) (models.GenerationResult, error) {
	grounded := len(sources) > 0
	prompt := buildPrompt(query, sources)

	provider, ref := g.manager.FirstLLMProvider()
	start := time.Now()
	resp, info, err := provider.Generate(ctx, providers.GenerateRequest{
		Operation:   "answer",
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		return models.GenerationResult{}, &ragerr.LLMProviderError{
			Provider: ref.Name,
			Model:    info.Model,
			Err:      err,
		}
	}
	if sources == nil {
		sources = []models.SearchResult{}
	}
	return models.GenerationResult{
		Answer:         resp.Text,
		Sources:        sources,
		Grounded:       grounded,
		Provider:       info.Name,
		Model:          info.Model,
		GenerationTime: elapsed,
	}, nil
}

func (g *Generator) resolve(p Params) (float64, int, error) {
	temperature := g.defaultTemperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	if temperature < 0 || temperature > 2 {
		return 0, 0, &ragerr.ConfigurationError{Reason: fmt.Sprintf("temperature must be in [0, 2], got %g", temperature)}
	}
	maxTokens := g.defaultMaxTokens
	if p.MaxTokens != nil {
		maxTokens = *p.MaxTokens
	}
	if maxTokens <= 0 {
		return 0, 0, &ragerr.ConfigurationError{Reason: fmt.Sprintf("max_tokens must be positive, got %d", maxTokens)}
	}
	return temperature, maxTokens, nil
}

func buildPrompt(query string, sources []models.SearchResult) string {
	var b strings.Builder
	if len(sources) == 0 {
		b.WriteString(ungroundedInstruction)
		b.WriteString("\n\nQuestion: ")
		b.WriteString(query)
		return b.String()
	}
	b.WriteString(systemInstruction)
	b.WriteString("\n\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "Source %d: %s\n\n", i+1, s.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
