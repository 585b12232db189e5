package flagutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/petr-muller/jirastats/internal/config"
)

func TestPipelineOptionsSettings(t *testing.T) {
	settingsFile := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(settingsFile, []byte("pageSize: 50\ncacheTTL: 1h\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name             string
		args             []string
		expectedPageSize int
		expectedTTL      time.Duration
		expectedTimeout  time.Duration
		expectError      bool
	}{
		{
			name:             "file values are kept without flags",
			args:             []string{"--settings", settingsFile},
			expectedPageSize: 50,
			expectedTTL:      time.Hour,
			expectedTimeout:  config.DefaultPageTimeout,
		},
		{
			name:             "explicit flags override the file",
			args:             []string{"--settings", settingsFile, "--page-size", "10", "--page-timeout", "5s"},
			expectedPageSize: 10,
			expectedTTL:      time.Hour,
			expectedTimeout:  5 * time.Second,
		},
		{
			name:        "invalid override is rejected",
			args:        []string{"--settings", settingsFile, "--page-size", "0"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			var o PipelineOptions
			o.AddPFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("cannot parse args: %v", err)
			}

			settings, err := o.Settings()
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if settings.PageSize != tt.expectedPageSize {
				t.Errorf("expected page size %d, got %d", tt.expectedPageSize, settings.PageSize)
			}
			if settings.CacheTTL != tt.expectedTTL {
				t.Errorf("expected cache TTL %s, got %s", tt.expectedTTL, settings.CacheTTL)
			}
			if settings.PageTimeout != tt.expectedTimeout {
				t.Errorf("expected page timeout %s, got %s", tt.expectedTimeout, settings.PageTimeout)
			}
		})
	}
}
