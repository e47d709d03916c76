package cli

import (
	"fmt"

	"github.com/lectern-ai/lectern/internal/agent"
	"github.com/lectern-ai/lectern/internal/catalog"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/rag"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/tools"
	"github.com/lectern-ai/lectern/internal/usage"
)

func openCatalog(cfg *config.Config) (*catalog.Store, error) {
	return catalog.Open(cfg.CatalogPath())
}

// newToolManager registers the catalog tools. Every surface gets its own
// manager because source recording is per-manager state.
func newToolManager(store *catalog.Store, cfg *config.Config) (*tools.Manager, error) {
	manager := tools.NewManager()
	catalogTools := []tools.Tool{
		tools.NewCourseSearchTool(store, cfg.Catalog.SearchLimit),
		tools.NewCourseOutlineTool(store),
	}
	for _, tool := range catalogTools {
		if err := manager.Register(tool); err != nil {
			return nil, fmt.Errorf("register tool %q: %w", tool.Name(), err)
		}
	}
	return manager, nil
}

// newSessionManager builds a session store rooted at dir. One exchange is a
// user/assistant message pair, so the history window doubles the configured
// exchange count.
func newSessionManager(cfg *config.Config, dir string) *session.Manager {
	return session.NewManager(dir, cfg.Agent.RecentExchanges*2)
}

// newEngine assembles one query engine over its own session store and tool
// manager. The catalog store and usage tracker are shared across engines.
func newEngine(cfg *config.Config, store *catalog.Store, sessions *session.Manager, tracker *usage.Tracker) (*rag.System, error) {
	manager, err := newToolManager(store, cfg)
	if err != nil {
		return nil, err
	}

	llmCfg := cfg.DefaultLLM()
	modelProvider, err := providerFactory(llmCfg)
	if err != nil {
		return nil, err
	}
	generator := agent.New(modelProvider, manager, agent.Options{
		SystemPrompt: agent.SystemPrompt,
		RoundTimeout: llmCfg.RequestTimeout,
	})

	return rag.New(rag.Options{
		Generator:       generator,
		Tools:           manager,
		Sessions:        sessions,
		Catalog:         store,
		Usage:           tracker,
		Provider:        llmCfg.Provider,
		Model:           llmCfg.Model,
		MaxRounds:       cfg.Agent.MaxRounds,
		DailyTokenLimit: cfg.Usage.DailyTokenLimit,
	}), nil
}
