package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/missionctl/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "missionctl"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# missionctl configuration
# Run: missionctl --help

# Optional: override the SQLite database location.
# Can also be set via MISSIONCTL_DB_PATH or --db-path.
# db_path: ~/.config/missionctl/missionctl.db

# HTTP listen address for missionctl serve.
# listen_addr: 127.0.0.1:8476

# Shared-secret token required in the X-MC-Token header.
# Can also be set via MISSIONCTL_API_TOKEN.
# api_token: ""

# Chat notifications (best-effort, left disabled when webhook_url is empty).
# chat:
#   webhook_url: ""
#   fallback_channel: ""
#   agent_channels:
#     caio: chn_backlog
#     leticia: chn_deploy_status
`
