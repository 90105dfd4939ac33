package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabled(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	// No logs directory should be created in production mode
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created with debug mode off")
	}

	// Logging must be a silent no-op
	Pipeline("this should go nowhere")
}

func TestInitializeDebugWritesFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Pathway("branch taken at depth %d", 2)
	PathwayDebug("signals: %v", map[string]interface{}{"retracted": true})
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "pathway") {
			found = true
			data, _ := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if !strings.Contains(string(data), "branch taken at depth 2") {
				t.Errorf("log content missing message, got: %s", data)
			}
		}
	}
	if !found {
		t.Error("no pathway log file written")
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	s := Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"gateway": false},
	}
	if err := Initialize(dir, s); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryGateway) {
		t.Error("gateway category should be disabled")
	}
	if !IsCategoryEnabled(CategoryPipeline) {
		t.Error("unlisted categories should default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryConfidence)
	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible warn")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(dir, "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "confidence") {
			data, _ := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if strings.Contains(string(data), "hidden") {
				t.Errorf("level filter leaked suppressed entries: %s", data)
			}
			if !strings.Contains(string(data), "visible warn") {
				t.Errorf("warn entry missing: %s", data)
			}
		}
	}
}
