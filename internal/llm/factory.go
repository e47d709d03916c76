package llm

import (
	"fmt"
	"strings"

	"github.com/lectern-ai/lectern/internal/config"
)

const defaultMaxTokens = 800

func resolveMaxTokens(requestMaxTokens, configuredMaxTokens int) int {
	if requestMaxTokens > 0 {
		return requestMaxTokens
	}
	if configuredMaxTokens > 0 {
		return configuredMaxTokens
	}
	return defaultMaxTokens
}

// resolveTemperature prefers the per-request value when set, falling back to
// the configured default. Zero is a valid temperature, so requests opt in
// with any non-zero value and the config default covers the rest.
func resolveTemperature(requestTemperature, configuredTemperature float64) float64 {
	if requestTemperature != 0 {
		return requestTemperature
	}
	return configuredTemperature
}

// NewProviderFromConfig builds an LLM provider from the configured profile.
func NewProviderFromConfig(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
