package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	settingsFileName = "settings.yaml"

	DefaultCacheTTL      = 15 * time.Minute
	DefaultPageSize      = 99
	DefaultPageTimeout   = 30 * time.Second
	DefaultStatusField   = "status"
	DefaultAssigneeField = "assignee"
)

// Settings holds the tunables of the fetch and reconstruction pipeline
type Settings struct {
	// CacheTTL is how long a fetched search result stays live
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// PageSize is the number of issues requested per search page
	PageSize int `yaml:"pageSize"`
	// PageTimeout bounds a single page request
	PageTimeout time.Duration `yaml:"pageTimeout"`
	// MaxConcurrency bounds concurrent page requests, zero means no limit
	MaxConcurrency int `yaml:"maxConcurrency"`
	// StatusField is the changelog field name of status transitions
	StatusField string `yaml:"statusField"`
	// AssigneeField is the changelog field name of assignee changes
	AssigneeField string `yaml:"assigneeField"`
}

// NewSettings creates settings populated with defaults
func NewSettings() *Settings {
	return &Settings{
		CacheTTL:      DefaultCacheTTL,
		PageSize:      DefaultPageSize,
		PageTimeout:   DefaultPageTimeout,
		StatusField:   DefaultStatusField,
		AssigneeField: DefaultAssigneeField,
	}
}

// LoadSettings loads settings from the default location, returns defaults if the file doesn't exist
func LoadSettings() (*Settings, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadSettingsFile(filepath.Join(dir, settingsFileName))
}

// LoadSettingsFile loads settings from path. Values missing in the file keep their defaults.
func LoadSettingsFile(path string) (*Settings, error) {
	settings := NewSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return settings, nil
}

// SaveSettingsFile writes settings to path
func (s *Settings) SaveSettingsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

func (s *Settings) Validate() error {
	if s.CacheTTL < 0 {
		return fmt.Errorf("cacheTTL must not be negative")
	}
	if s.PageSize <= 0 {
		return fmt.Errorf("pageSize must be positive")
	}
	if s.PageTimeout < 0 {
		return fmt.Errorf("pageTimeout must not be negative")
	}
	if s.MaxConcurrency < 0 {
		return fmt.Errorf("maxConcurrency must not be negative")
	}
	if s.StatusField == "" || s.AssigneeField == "" {
		return fmt.Errorf("statusField and assigneeField must be nonempty")
	}
	return nil
}
