package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

type Config struct {
	User      User      `toml:"user"`
	Store     Store     `toml:"store"`
	Sync      Sync      `toml:"sync"`
	Migration Migration `toml:"migration"`
	Bridge    Bridge    `toml:"bridge"`
	Cache     Cache     `toml:"cache"`
}

type User struct {
	ID          string `toml:"id"`
	Email       string `toml:"email"`
	DisplayName string `toml:"display_name"`

	// Peers are linked in addition to the friends list of the profile
	// document.
	Peers []string `toml:"peers,omitempty"`
}

type Store struct {
	Driver   string `toml:"driver"`
	URI      string `toml:"uri,omitempty"`
	Database string `toml:"database,omitempty"`
}

type Sync struct {
	BackoffDelays  []Duration `toml:"backoff_delays"`
	BackoffSteady  Duration   `toml:"backoff_steady"`
	Debounce       Duration   `toml:"debounce"`
	ResumeSettle   Duration   `toml:"resume_settle"`
	NetworkRestore Duration   `toml:"network_restore"`
	HealthCheck    Duration   `toml:"health_check"`
	WriteReconnect Duration   `toml:"write_reconnect"`
	PeerCap        int        `toml:"peer_cap"`
}

type Migration struct {
	BatchSize int `toml:"batch_size"`
}

type Bridge struct {
	RelockAfter Duration `toml:"relock_after"`
}

type Cache struct {
	Path string `toml:"path,omitempty"`
}

// Duration is a time.Duration written as a string ("2s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.Driver == DriverMongo && c.Store.Database == "" {
		c.Store.Database = "nudge"
	}
	if len(c.Sync.BackoffDelays) == 0 {
		c.Sync.BackoffDelays = []Duration{{2 * time.Second}, {4 * time.Second}, {8 * time.Second}, {16 * time.Second}}
	}
	setDuration(&c.Sync.BackoffSteady, 30*time.Second)
	setDuration(&c.Sync.Debounce, 100*time.Millisecond)
	setDuration(&c.Sync.ResumeSettle, 500*time.Millisecond)
	setDuration(&c.Sync.NetworkRestore, time.Second)
	setDuration(&c.Sync.HealthCheck, 30*time.Second)
	setDuration(&c.Sync.WriteReconnect, 300*time.Millisecond)
	if c.Sync.PeerCap <= 0 {
		c.Sync.PeerCap = 10
	}
	if c.Migration.BatchSize <= 0 {
		c.Migration.BatchSize = 500
	}
	setDuration(&c.Bridge.RelockAfter, 5*time.Minute)
	if c.Cache.Path == "" && UserNudgeSettings != nil {
		c.Cache.Path = UserNudgeSettings.CachePath
	}
}

func setDuration(d *Duration, def time.Duration) {
	if d.Duration <= 0 {
		d.Duration = def
	}
}

// Validate checks the settings a session needs.
func (c *Config) Validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("user.id is not set; run `nudge config init`")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongo:
		if c.Store.URI == "" {
			return fmt.Errorf("store.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, DriverMemory, DriverMongo)
	}
	if c.Sync.PeerCap > 10 {
		return fmt.Errorf("sync.peer_cap is %d; the store accepts at most 10", c.Sync.PeerCap)
	}
	return nil
}

// Delays returns the retry schedule as plain durations.
func (s Sync) Delays() []time.Duration {
	out := make([]time.Duration, len(s.BackoffDelays))
	for i, d := range s.BackoffDelays {
		out[i] = d.Duration
	}
	return out
}

// LoadConfig loads the configuration file, applying defaults. A missing file
// yields the defaults.
func LoadConfig() (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(UserNudgeSettings.ConfigPath); err == nil {
		if err := LoadTOML(UserNudgeSettings.ConfigPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config.setDefaults()
	return config, nil
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(config *Config) error {
	if err := SaveTOML(UserNudgeSettings.ConfigPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GenerateUserID generates a new id for the user.
func GenerateUserID() string {
	return uuid.New().String()
}

// EnsureConfig ensures the configuration exists and has a user id.
func EnsureConfig() (*Config, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if config.User.ID == "" {
		config.User.ID = GenerateUserID()
		if err := SaveConfig(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}
