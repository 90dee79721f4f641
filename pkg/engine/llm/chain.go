package llm

import "fmt"

// DefaultChainConfigs is the standard backend priority order. Entries whose
// API key is absent at startup are skipped, so any single configured
// provider is enough to run.
func DefaultChainConfigs(anthropicKey, geminiKey, openAIKey string) []Config {
	return []Config{
		{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5", APIKey: anthropicKey},
		{Provider: ProviderAnthropic, Model: "claude-3-7-sonnet-latest", APIKey: anthropicKey},
		{Provider: ProviderGemini, Model: "gemini-2.5-pro", APIKey: geminiKey},
		{Provider: ProviderGemini, Model: "gemini-2.5-flash", APIKey: geminiKey},
		{Provider: ProviderOpenAI, Model: "gpt-4o", APIKey: openAIKey},
		{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: openAIKey},
	}
}

// BuildChain constructs backends for every config with a usable key,
// preserving order. It fails only when no backend can be built.
func BuildChain(configs []Config) ([]Backend, error) {
	var chain []Backend
	for _, cfg := range configs {
		if cfg.APIKey == "" {
			continue
		}
		backend, err := NewBackend(cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, backend)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("llm: no backends configured, check API keys")
	}
	return chain, nil
}
