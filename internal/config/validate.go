package config

import (
	"errors"
	"fmt"
	"os"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// ValidationReport carries non-fatal startup findings.
type ValidationReport struct {
	Warnings []string
}

// Validate checks required LLM provider fields and provider-specific rules.
func (c LLMConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("provider is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}

	switch c.Provider {
	case "anthropic":
		if c.APIKey == "" {
			return errors.New("api_key is required")
		}
	case "openai":
		// Compatible local endpoints (Ollama, vLLM) need no API key.
		if c.APIKey == "" && c.BaseURL == "" {
			return errors.New("api_key is required unless base_url points at a local endpoint")
		}
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	return nil
}

// Validate checks the generation loop bounds.
func (c AgentConfig) Validate() error {
	if c.MaxRounds < 0 {
		return errors.New("max_rounds must be >= 0")
	}
	if c.RecentExchanges < 0 {
		return errors.New("recent_exchanges must be >= 0")
	}
	return nil
}

// Validate checks catalog settings.
func (c CatalogConfig) Validate() error {
	if c.SearchLimit <= 0 {
		return errors.New("search_limit must be > 0")
	}
	return nil
}

// Validate checks chunking bounds.
func (c IngestConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be > 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errors.New("chunk_overlap must be in [0, chunk_size)")
	}
	return nil
}

// Validate checks the HTTP server settings.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

// Validate checks the MCP SSE endpoint settings.
func (c MCPConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return errors.New("addr is required when enabled=true")
	}
	return nil
}

// Validate checks session lifecycle settings.
func (c SessionConfig) Validate() error {
	if c.IdleTTL < 0 {
		return errors.New("idle_ttl must be >= 0")
	}
	return nil
}

// Validate checks required channel fields when the channel is enabled.
func (c ChannelConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Token == "" {
		return errors.New("token is required when enabled=true")
	}
	return nil
}

// ValidateStartup validates startup configuration and returns warning messages.
func ValidateStartup(cfg *Config) (*ValidationReport, error) {
	var errs []error
	report := &ValidationReport{}

	if len(cfg.LLM) == 0 {
		errs = append(errs, errors.New("at least one llm.* profile is required"))
	}

	if err := cfg.Agent.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("agent: %w", err))
	}
	if err := cfg.Catalog.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if err := cfg.Ingest.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ingest: %w", err))
	}
	if err := cfg.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := cfg.MCP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mcp: %w", err))
	}
	if err := cfg.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}

	for name, llmCfg := range cfg.LLM {
		if err := llmCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
		}
	}
	for name, chCfg := range cfg.Channels {
		if err := chCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s: %w", name, err))
		}
	}

	if cfg.Ingest.DocsDir != "" {
		if _, err := os.Stat(cfg.Ingest.DocsDir); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("ingest.docs_dir %q does not exist", cfg.Ingest.DocsDir))
		}
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	return report, nil
}
