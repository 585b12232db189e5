package flagutil

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/petr-muller/jirastats/internal/config"
)

const (
	settingsFileFlag   = "settings"
	cacheTTLFlag       = "cache-ttl"
	pageSizeFlag       = "page-size"
	pageTimeoutFlag    = "page-timeout"
	maxConcurrencyFlag = "max-concurrency"
)

// PipelineOptions override the settings file from the command line
type PipelineOptions struct {
	settingsFile   string
	cacheTTL       time.Duration
	pageSize       int
	pageTimeout    time.Duration
	maxConcurrency int

	fs *pflag.FlagSet
}

// AddPFlags injects pipeline options into the given pflag.FlagSet
func (o *PipelineOptions) AddPFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.settingsFile, settingsFileFlag, "", "Path to the settings file (defaults to settings.yaml in the jirastats config directory)")
	fs.DurationVar(&o.cacheTTL, cacheTTLFlag, config.DefaultCacheTTL, "How long fetched search results are reused")
	fs.IntVar(&o.pageSize, pageSizeFlag, config.DefaultPageSize, "Number of issues requested per search page")
	fs.DurationVar(&o.pageTimeout, pageTimeoutFlag, config.DefaultPageTimeout, "Timeout of a single search page request")
	fs.IntVar(&o.maxConcurrency, maxConcurrencyFlag, 0, "Maximum concurrent page requests (0 means no limit)")
	o.fs = fs
}

// Settings loads the settings file and applies explicitly set flags on top of it
func (o *PipelineOptions) Settings() (*config.Settings, error) {
	var settings *config.Settings
	var err error
	if o.settingsFile != "" {
		settings, err = config.LoadSettingsFile(o.settingsFile)
	} else {
		settings, err = config.LoadSettings()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load settings: %w", err)
	}

	if o.fs != nil {
		if o.fs.Changed(cacheTTLFlag) {
			settings.CacheTTL = o.cacheTTL
		}
		if o.fs.Changed(pageSizeFlag) {
			settings.PageSize = o.pageSize
		}
		if o.fs.Changed(pageTimeoutFlag) {
			settings.PageTimeout = o.pageTimeout
		}
		if o.fs.Changed(maxConcurrencyFlag) {
			settings.MaxConcurrency = o.maxConcurrency
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}
