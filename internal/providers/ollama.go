package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaProvider supports local, free embeddings and generation via a
// running Ollama daemon. Example models: nomic-embed-text, llama3.
type OllamaProvider struct {
	alias      string
	baseURL    string
	embedModel string
	chatModel  string
	client     *http.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("RAGKIT_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: resolveOllamaModel("RAGKIT_OLLAMA_EMBED_MODEL", alias, "nomic-embed-text"),
		chatModel:  resolveOllamaModel("RAGKIT_OLLAMA_CHAT_MODEL", "", "llama3"),
		client:     &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		payload, _ := json.Marshal(map[string]any{
			"model":  o.embedModel,
			"prompt": text,
		})
		httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(httpReq)
		if err != nil {
			return nil, info, fmt.Errorf("ollama embedding request failed: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, info, fmt.Errorf("ollama embedding error %d: %s", resp.StatusCode, string(body))
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, info, fmt.Errorf("decode ollama embedding response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, parsed.Embedding)
	}
	return out, info, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.chatModel, Key: o.alias}
	payload, _ := json.Marshal(map[string]any{
		"model":  o.chatModel,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode ollama generate response: %w", err)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return GenerateResponse{}, info, fmt.Errorf("ollama returned empty response")
	}
	return GenerateResponse{Text: parsed.Response}, info, nil
}

func (o *OllamaProvider) Health(ctx context.Context) error {
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ollama health status %d", resp.StatusCode)
	}
	return nil
}

func resolveOllamaModel(envKey, alias, fallback string) string {
	if alias = strings.TrimSpace(alias); alias != "" {
		// Allow a direct model name in the provider list, e.g.
		// ollama:nomic-embed-text.
		if strings.ContainsAny(alias, "-./") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return fallback
}
