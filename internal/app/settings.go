package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath     string       `yaml:"db_path"`
	ListenAddr string       `yaml:"listen_addr"`
	APIToken   string       `yaml:"api_token"`
	Chat       ChatSettings `yaml:"chat"`

	HeartbeatThresholdMinutes int `yaml:"heartbeat_threshold_minutes"`
	AckTimeoutMinutes         int `yaml:"ack_timeout_minutes"`
	RunningTimeoutMinutes     int `yaml:"running_timeout_minutes"`
	AckDeadlineMinutes        int `yaml:"ack_deadline_minutes"`
}

// ChatSettings configures the best-effort chat notifier.
type ChatSettings struct {
	WebhookURL      string            `yaml:"webhook_url"`
	FallbackChannel string            `yaml:"fallback_channel"`
	AgentChannels   map[string]string `yaml:"agent_channels"`
}

// SweepSettings are effective runtime values used by the dispatch
// watchdog and the reconciliation sweep.
type SweepSettings struct {
	HeartbeatThreshold time.Duration `json:"heartbeat_threshold"`
	AckTimeout         time.Duration `json:"ack_timeout"`
	RunningTimeout     time.Duration `json:"running_timeout"`
	AckDeadline        time.Duration `json:"ack_deadline"`
}

const (
	defaultListenAddr = "127.0.0.1:8476"

	defaultHeartbeatThresholdMin = 3
	defaultAckTimeoutMin         = 2
	defaultRunningTimeoutMin     = 15
	defaultAckDeadlineMin        = 5
)

// EffectiveSweepSettings returns validated sweep thresholds with defaults.
// Invalid or missing config values fall back to safe defaults.
func EffectiveSweepSettings() SweepSettings {
	cfg := SweepSettings{
		HeartbeatThreshold: defaultHeartbeatThresholdMin * time.Minute,
		AckTimeout:         defaultAckTimeoutMin * time.Minute,
		RunningTimeout:     defaultRunningTimeoutMin * time.Minute,
		AckDeadline:        defaultAckDeadlineMin * time.Minute,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.HeartbeatThresholdMinutes > 0 {
		cfg.HeartbeatThreshold = time.Duration(s.HeartbeatThresholdMinutes) * time.Minute
	}
	if s.AckTimeoutMinutes > 0 {
		cfg.AckTimeout = time.Duration(s.AckTimeoutMinutes) * time.Minute
	}
	if s.RunningTimeoutMinutes > 0 {
		cfg.RunningTimeout = time.Duration(s.RunningTimeoutMinutes) * time.Minute
	}
	if s.AckDeadlineMinutes > 0 {
		cfg.AckDeadline = time.Duration(s.AckDeadlineMinutes) * time.Minute
	}

	return cfg
}

// APIToken resolves the shared-secret token. Environment wins over config
// so deployments can keep the secret out of the yaml file.
func APIToken() string {
	if tok := os.Getenv("MISSIONCTL_API_TOKEN"); tok != "" {
		return tok
	}
	s, err := LoadSettings()
	if err != nil {
		return ""
	}
	return s.APIToken
}

// ListenAddr resolves the HTTP listen address.
func ListenAddr() string {
	if addr := os.Getenv("MISSIONCTL_LISTEN_ADDR"); addr != "" {
		return addr
	}
	s, err := LoadSettings()
	if err == nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return defaultListenAddr
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/missionctl/config.yaml
// 2) /etc/missionctl/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "missionctl", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
