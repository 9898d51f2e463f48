package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveConfigWritesDurationsAsStrings(t *testing.T) {
	useTempSettings(t)

	config := Default()
	config.User = User{ID: "alice", Email: "alice@example.com", DisplayName: "Alice", Peers: []string{"bob"}}
	config.Sync.Debounce = Duration{250 * time.Millisecond}

	if err := SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	raw, err := os.ReadFile(UserNudgeSettings.ConfigPath)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	if !strings.Contains(string(raw), `debounce = "250ms"`) {
		t.Errorf("Expected debounce written as a string, got:\n%s", raw)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.User.DisplayName != "Alice" || len(loaded.User.Peers) != 1 {
		t.Errorf("Unexpected user %+v", loaded.User)
	}
	if loaded.Sync.Debounce.Duration != 250*time.Millisecond {
		t.Errorf("Expected debounce 250ms, got %s", loaded.Sync.Debounce)
	}
}

func TestSaveConfigIsOwnerOnly(t *testing.T) {
	useTempSettings(t)

	config := Default()
	config.User.ID = "alice"
	if err := SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(UserNudgeSettings.ConfigPath)
	if err != nil {
		t.Fatalf("Failed to stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	entries, err := os.ReadDir(filepath.Dir(UserNudgeSettings.ConfigPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the config file, found %d entries", len(entries))
	}
}

func TestLoadConfigRejectsUnknownSettings(t *testing.T) {
	useTempSettings(t)
	if err := os.MkdirAll(filepath.Dir(UserNudgeSettings.ConfigPath), 0700); err != nil {
		t.Fatal(err)
	}
	content := "[user]\nid = \"alice\"\n\n[sync]\ndebounse = \"1s\"\n"
	if err := os.WriteFile(UserNudgeSettings.ConfigPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "sync.debounse") {
		t.Fatalf("Expected unknown setting error, got %v", err)
	}
}
