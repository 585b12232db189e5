package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// appDirName is a directory in the user's config and data directories where jirastats files are stored
	appDirName string = "jirastats"
)

// ConfigDir returns the directory holding jirastats configuration
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot obtain user config dir: %w", err)
	}

	return filepath.Join(configDir, appDirName), nil
}

func MustConfigDir() string {
	dir, err := ConfigDir()
	if err != nil {
		panic(err)
	}
	return dir
}

// DataDir returns the data directory path for jirastats dumps
func DataDir() (string, error) {
	var dataDir string

	// Try XDG_DATA_HOME first, then fallback to ~/.local/share
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		dataDir = xdgDataHome
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot obtain user home dir: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, appDirName), nil
}
