package providers

import (
	"context"
	"fmt"
	"strings"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured provider instances. It is constructed
// once at service start and shared read-only.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
	embedDim       int
}

// NewManager builds providers from pipe-separated lists such as
// "openai|ollama:nomic|mock". Empty lists fall back to mock.
func NewManager(llmList, embedList string, embedDim int) (*Manager, error) {
	m := &Manager{embedDim: embedDim}
	for _, ref := range ParseProviderList(llmList) {
		p, err := buildProvider(ref, embedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(embedList) {
		p, err := buildProvider(ref, embedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	if len(m.embedProviders) == 0 {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(embedDim)}}
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(embedDim)}}
	}
	return m, nil
}

// NewStaticManager wraps already-constructed providers. Used by tests
// and anywhere a provider instance is injected rather than configured.
func NewStaticManager(llm LLMProvider, embed EmbeddingProvider, embedDim int) *Manager {
	return &Manager{
		llmProviders:   []NamedLLMProvider{{Ref: ProviderRef{Raw: "static", Name: "static"}, Provider: llm}},
		embedProviders: []NamedEmbedProvider{{Ref: ProviderRef{Raw: "static", Name: "static"}, Provider: embed}},
		embedDim:       embedDim,
	}
}

func (m *Manager) EmbedDim() int { return m.embedDim }

func (m *Manager) FirstEmbedProvider() (EmbeddingProvider, ProviderRef) {
	return m.embedProviders[0].Provider, m.embedProviders[0].Ref
}

func (m *Manager) FirstLLMProvider() (LLMProvider, ProviderRef) {
	return m.llmProviders[0].Provider, m.llmProviders[0].Ref
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

func (m *Manager) EmbedCount() int { return len(m.embedProviders) }
func (m *Manager) LLMCount() int   { return len(m.llmProviders) }

// LLMHealth reports reachability of the primary LLM provider.
func (m *Manager) LLMHealth(ctx context.Context) error {
	p, ref := m.FirstLLMProvider()
	if hc, ok := p.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	if strings.TrimSpace(ref.Name) == "" {
		return fmt.Errorf("no llm provider configured")
	}
	return nil
}

// EmbedHealth reports reachability of the primary embedding provider.
func (m *Manager) EmbedHealth(ctx context.Context) error {
	p, _ := m.FirstEmbedProvider()
	if hc, ok := p.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
