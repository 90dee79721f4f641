package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type openAIBackend struct {
	cfg    Config
	client *http.Client
	cost   *CostTracker
}

func newOpenAIBackend(cfg Config) *openAIBackend {
	return &openAIBackend{cfg: cfg, client: newHTTPClient(cfg), cost: &CostTracker{}}
}

func (b *openAIBackend) Name() string {
	return ProviderOpenAI + "/" + b.cfg.Model
}

func (b *openAIBackend) Cost() *CostTracker { return b.cost }

func (b *openAIBackend) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	payload := map[string]any{
		"model":    b.cfg.Model,
		"messages": messages,
	}
	// Reasoning models reject max_tokens and non-default temperature.
	if strings.HasPrefix(b.cfg.Model, "gpt-5") || strings.HasPrefix(b.cfg.Model, "o1") || strings.HasPrefix(b.cfg.Model, "o3") {
		payload["max_completion_tokens"] = b.cfg.MaxTokens
	} else {
		payload["max_tokens"] = b.cfg.MaxTokens
		payload["temperature"] = b.cfg.Temperature
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("openai API error %d: %s", resp.StatusCode, errBody)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}

	b.cost.AddUsage(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out.Choices[0].Message.Content, nil
}
