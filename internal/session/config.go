package session

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/configs"
	"github.com/PolarWolf314/nudge/internal/coordinator"
	"github.com/PolarWolf314/nudge/internal/keycache"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/store"
	"github.com/PolarWolf314/nudge/internal/store/memstore"
	"github.com/PolarWolf314/nudge/internal/store/mongostore"
)

// OpenStore connects to the document store named by the configuration.
func OpenStore(ctx context.Context, cfg configs.Store) (store.DocumentStore, error) {
	switch cfg.Driver {
	case configs.DriverMemory, "":
		return memstore.New(), nil
	case configs.DriverMongo:
		s, err := mongostore.New(ctx, cfg.URI, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URI, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenKeyCache opens the local key cache sealed with the device key.
func OpenKeyCache(cfg *configs.Config, settings *configs.UserSettings) (*keycache.Cache, error) {
	deviceKey, err := keycache.LoadOrCreateDeviceKey(settings.DeviceKeyPath)
	if err != nil {
		return nil, err
	}
	return keycache.Open(cfg.Cache.Path, deviceKey)
}

// OpenFromConfig opens a session with the store, key cache and intervals of
// cfg. The session owns the store and cache and closes them with itself.
func OpenFromConfig(ctx context.Context, cfg *configs.Config, settings *configs.UserSettings, log logger.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	cache, err := OpenKeyCache(cfg, settings)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	s, err := Open(ctx, Options{
		UserID:      cfg.User.ID,
		Email:       cfg.User.Email,
		DisplayName: cfg.User.DisplayName,
		Store:       st,
		Peers:       cfg.User.Peers,
		Mirror:      cache,
		Policy:      backoff.Policy{Delays: cfg.Sync.Delays(), Steady: cfg.Sync.BackoffSteady.Duration},
		Timing:      TimingFrom(cfg.Sync),
		BatchSize:   cfg.Migration.BatchSize,
		Logger:      log,
		Audit:       audit.At(settings.DataDir, cfg.User.Email, cfg.User.ID),
	})
	if err != nil {
		cache.Close()
		_ = st.Close(ctx)
		return nil, err
	}
	s.onClose(st.Close)
	s.onClose(func(context.Context) error { return cache.Close() })
	return s, nil
}

// TimingFrom converts the sync settings to coordinator delays.
func TimingFrom(cfg configs.Sync) coordinator.Timing {
	return coordinator.Timing{
		Debounce:       cfg.Debounce.Duration,
		ResumeSettle:   cfg.ResumeSettle.Duration,
		NetworkRestore: cfg.NetworkRestore.Duration,
		HealthCheck:    cfg.HealthCheck.Duration,
		WriteReconnect: cfg.WriteReconnect.Duration,
		PeerCap:        cfg.PeerCap,
	}
}
