package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petr-muller/jirastats/internal/jirastats/timeline"
)

func TestResolveDumpPath(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	workDir := t.TempDir()
	t.Chdir(workDir)
	if err := os.WriteFile("local.json", []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		path         string
		expectedPath string
	}{
		{
			name:         "bare name present in working directory",
			path:         "local.json",
			expectedPath: "local.json",
		},
		{
			name:         "bare name missing from working directory",
			path:         "stored.json",
			expectedPath: filepath.Join(dataHome, "jirastats", "stored.json"),
		},
		{
			name:         "path with directory is kept",
			path:         filepath.Join("dumps", "stored.json"),
			expectedPath: filepath.Join("dumps", "stored.json"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := resolveDumpPath(tt.path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if path != tt.expectedPath {
				t.Errorf("expected path %q, got %q", tt.expectedPath, path)
			}
		})
	}
}

func TestReportOutput(t *testing.T) {
	report := &timeline.Report{
		Timelines: map[string]*timeline.Timeline{
			"OTA-2": {Key: "OTA-2", Title: "Second"},
			"OTA-1": {Key: "OTA-1", Title: "First"},
		},
		Order:    []string{"OTA-2", "OTA-1"},
		Statuses: map[string]int{"New": 2},
		Types:    map[string]int{"Bug": 2},
	}

	var out bytes.Buffer
	if err := encodeYAML(&out, newReportOutput(report)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := out.String()
	for _, expected := range []string{"timelines:", "statuses:", "types:", "order:", "has_history: false"} {
		if !strings.Contains(text, expected) {
			t.Errorf("expected output to contain %q, got:\n%s", expected, text)
		}
	}
	if strings.Index(text, "key: OTA-2") > strings.Index(text, "key: OTA-1") {
		t.Errorf("expected timelines in dataset order, got:\n%s", text)
	}
}
