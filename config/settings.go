package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Upstream UpstreamSettings `json:"upstream"`
	Download DownloadSettings `json:"download"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// UpstreamSettings configures the host pool and dispatcher behavior. Hosts
// are ordered: the first entry is the primary, the rest are mirrors tried in
// order on failover.
type UpstreamSettings struct {
	Hosts             []string `json:"hosts"`
	ClientMarker      string   `json:"clientMarker"`
	RequestTimeoutSec int      `json:"requestTimeoutSec"`
	MaxRetries        int      `json:"maxRetries"`
}

// DownloadSettings controls candidate filtering and media transfer limits.
// RequireAvailabilityFlag switches to the stricter policy that excludes
// candidates whose upstream availability flag is false even when a URL is
// present; the default trusts URL presence alone.
type DownloadSettings struct {
	RequireAvailabilityFlag bool `json:"requireAvailabilityFlag"`
	ProbeTimeoutSec         int  `json:"probeTimeoutSec"`
	MediaTimeoutMin         int  `json:"mediaTimeoutMin"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 8099,
		},
		Upstream: UpstreamSettings{
			Hosts: []string{
				"https://moviebox.ng",
				"https://h5.aoneroom.com",
				"https://moviebox.ph",
			},
			ClientMarker:      `{"package_name":"com.community.mbox.in"}`,
			RequestTimeoutSec: 30,
			MaxRetries:        2,
		},
		Download: DownloadSettings{
			RequireAvailabilityFlag: false,
			ProbeTimeoutSec:         5,
			MediaTimeoutMin:         30,
		},
		Log: LogConfig{
			File:       filepath.Join("cache", "mirrorbox.log"),
			Level:      "info",
			MaxSize:    50,   // 50 MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     7,    // 7 days
			Compress:   true, // compress old files
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for newly introduced settings when config predates them
	defaults := DefaultSettings()
	if len(s.Upstream.Hosts) == 0 {
		s.Upstream.Hosts = defaults.Upstream.Hosts
	}
	if strings.TrimSpace(s.Upstream.ClientMarker) == "" {
		s.Upstream.ClientMarker = defaults.Upstream.ClientMarker
	}
	if s.Upstream.RequestTimeoutSec <= 0 {
		s.Upstream.RequestTimeoutSec = defaults.Upstream.RequestTimeoutSec
	}
	if s.Upstream.MaxRetries < 0 {
		s.Upstream.MaxRetries = defaults.Upstream.MaxRetries
	}
	if s.Download.ProbeTimeoutSec <= 0 {
		s.Download.ProbeTimeoutSec = defaults.Download.ProbeTimeoutSec
	}
	if s.Download.MediaTimeoutMin <= 0 {
		s.Download.MediaTimeoutMin = defaults.Download.MediaTimeoutMin
	}
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = defaults.Server.Host
	}

	return s, nil
}

// Save writes settings to disk, creating the parent directory if needed.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}
