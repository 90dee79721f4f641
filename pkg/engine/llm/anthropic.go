package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type anthropicBackend struct {
	cfg    Config
	client *http.Client
	cost   *CostTracker
}

func newAnthropicBackend(cfg Config) *anthropicBackend {
	return &anthropicBackend{cfg: cfg, client: newHTTPClient(cfg), cost: &CostTracker{}}
}

func (b *anthropicBackend) Name() string {
	return ProviderAnthropic + "/" + b.cfg.Model
}

func (b *anthropicBackend) Cost() *CostTracker { return b.cost }

func (b *anthropicBackend) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	payload := map[string]any{
		"model":      b.cfg.Model,
		"max_tokens": b.cfg.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, errBody)
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	var content string
	for _, c := range out.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}
	if content == "" {
		return "", fmt.Errorf("anthropic: empty response")
	}

	b.cost.AddUsage(out.Usage.InputTokens, out.Usage.OutputTokens)
	return content, nil
}
