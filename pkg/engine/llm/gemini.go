package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type geminiBackend struct {
	cfg    Config
	client *http.Client
	cost   *CostTracker
}

func newGeminiBackend(cfg Config) *geminiBackend {
	return &geminiBackend{cfg: cfg, client: newHTTPClient(cfg), cost: &CostTracker{}}
}

func (b *geminiBackend) Name() string {
	return ProviderGemini + "/" + b.cfg.Model
}

func (b *geminiBackend) Cost() *CostTracker { return b.cost }

func (b *geminiBackend) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": b.cfg.MaxTokens,
			"temperature":     b.cfg.Temperature,
		},
	}
	if systemPrompt != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		}
	}

	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/models/%s:generateContent", b.cfg.BaseURL, b.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode, errBody)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates in response")
	}

	var content string
	for _, part := range out.Candidates[0].Content.Parts {
		content += part.Text
	}
	if content == "" {
		return "", fmt.Errorf("gemini: empty response")
	}

	b.cost.AddUsage(out.UsageMetadata.PromptTokenCount, out.UsageMetadata.CandidatesTokenCount)
	return content, nil
}
