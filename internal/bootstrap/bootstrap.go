// Package bootstrap creates the Lectern home tree on startup so every other
// component can assume its directories and seed files exist.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lectern-ai/lectern/internal/config"
)

// Initialize creates the expected Lectern data tree if missing. Existing
// files are never touched, so user edits to config.toml survive restarts.
func Initialize(cfg *config.Config) error {
	dirs := []string{
		cfg.HomeDir,
		cfg.DataDir(),
		cfg.LogsDir(),
		cfg.SessionsDir(),
		filepath.Join(cfg.SessionsDir(), config.APISessionsDirPath),
		filepath.Join(cfg.SessionsDir(), config.CLISessionsDirPath),
		filepath.Join(cfg.SessionsDir(), config.TGSessionsDirPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	userConfig, err := config.DefaultUserConfigTOML()
	if err != nil {
		return err
	}

	files := []struct {
		path    string
		content string
	}{
		{path: cfg.ConfigPath(), content: userConfig},
		{path: cfg.UsagePath(), content: ""},
		{path: cfg.CLISessionPath(), content: ""},
	}

	for _, file := range files {
		if err := writeFileIfMissing(file.path, file.content); err != nil {
			return err
		}
	}

	return nil
}

func writeFileIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}
