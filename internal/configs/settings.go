package configs

import (
	"log"
	"os"
	"path/filepath"
)

type UserSettings struct {
	ConfigPath    string
	DataDir       string
	CachePath     string
	DeviceKeyPath string
}

var UserNudgeSettings *UserSettings

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("error getting home directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")

	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	UserNudgeSettings = SettingsFor(filepath.Join(configDir, "nudge"), filepath.Join(dataDir, "nudge"))
}

// SettingsFor lays out the nudge files under a config and a data directory.
func SettingsFor(configDir, dataDir string) *UserSettings {
	return &UserSettings{
		ConfigPath:    filepath.Join(configDir, "config.toml"),
		DataDir:       dataDir,
		CachePath:     filepath.Join(dataDir, "keycache.db"),
		DeviceKeyPath: filepath.Join(dataDir, "device.key"),
	}
}
