package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadSettingsFile(t *testing.T) {
	tests := []struct {
		name        string
		content     *string
		expected    *Settings
		expectError bool
	}{
		{
			name:     "missing file yields defaults",
			expected: NewSettings(),
		},
		{
			name:    "partial file keeps remaining defaults",
			content: ptr("cacheTTL: 1h\npageSize: 50\n"),
			expected: &Settings{
				CacheTTL:      time.Hour,
				PageSize:      50,
				PageTimeout:   DefaultPageTimeout,
				StatusField:   DefaultStatusField,
				AssigneeField: DefaultAssigneeField,
			},
		},
		{
			name:    "custom field names",
			content: ptr("statusField: Workflow\nassigneeField: Owner\nmaxConcurrency: 4\n"),
			expected: &Settings{
				CacheTTL:       DefaultCacheTTL,
				PageSize:       DefaultPageSize,
				PageTimeout:    DefaultPageTimeout,
				MaxConcurrency: 4,
				StatusField:    "Workflow",
				AssigneeField:  "Owner",
			},
		},
		{
			name:        "zero page size is rejected",
			content:     ptr("pageSize: 0\n"),
			expectError: true,
		},
		{
			name:        "malformed yaml",
			content:     ptr("pageSize: [\n"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}

			result, err := LoadSettingsFile(path)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, result); diff != "" {
				t.Errorf("settings differ (-expected +got):\n%s", diff)
			}
		})
	}
}

func TestSaveSettingsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	settings := NewSettings()
	settings.PageSize = 25
	settings.CacheTTL = 2 * time.Minute

	if err := settings.SaveSettingsFile(path); err != nil {
		t.Fatalf("SaveSettingsFile() error = %v", err)
	}

	loaded, err := LoadSettingsFile(path)
	if err != nil {
		t.Fatalf("LoadSettingsFile() error = %v", err)
	}
	if diff := cmp.Diff(settings, loaded); diff != "" {
		t.Errorf("settings differ (-saved +loaded):\n%s", diff)
	}
}

func TestDataDirHonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	got, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error = %v", err)
	}
	if want := filepath.Join(dir, "jirastats"); got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
}

func ptr(s string) *string { return &s }
