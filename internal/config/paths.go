package config

import "path/filepath"

const (
	// Global layout under LECTERN_HOME.
	ConfigFilePath = "config.toml"
	DataDirPath    = "data"
	LogsDirPath    = "logs"

	CatalogFileName = "catalog.db"
	UsageFileName   = "usage.jsonl"

	// Session layout under LECTERN_HOME/data/sessions/.
	SessionsDirPath    = "sessions"
	APISessionsDirPath = "api"
	CLISessionsDirPath = "cli"
	TGSessionsDirPath  = "telegram"
	DefaultSessionPath = "default.jsonl"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".lectern")
}

func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

func (c *Config) DataDir() string {
	return filepath.Join(c.HomeDir, DataDirPath)
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir(), LogsDirPath)
}

// CatalogPath resolves the catalog database location, honoring the
// catalog.path override.
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.DataDir(), CatalogFileName)
}

func (c *Config) UsagePath() string {
	return filepath.Join(c.LogsDir(), UsageFileName)
}

func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir(), SessionsDirPath)
}

// APISessionsDir holds one JSONL file per HTTP API session.
func (c *Config) APISessionsDir() string {
	return filepath.Join(c.SessionsDir(), APISessionsDirPath)
}

// CLISessionPath is the single persistent REPL session file.
func (c *Config) CLISessionPath() string {
	return filepath.Join(c.SessionsDir(), CLISessionsDirPath, DefaultSessionPath)
}

// TelegramSessionsDir holds one JSONL file per Telegram chat.
func (c *Config) TelegramSessionsDir() string {
	return filepath.Join(c.SessionsDir(), TGSessionsDirPath)
}
