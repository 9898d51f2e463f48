package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/codec"
	"github.com/PolarWolf314/nudge/internal/coordinator"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keys"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/migration"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"
)

// Options configures a Session.
type Options struct {
	UserID      string
	Email       string
	DisplayName string
	Store       store.DocumentStore

	// Peers are linked in addition to the friends listed on the user's
	// profile document.
	Peers []string

	// Mirror, if set, receives key material for the background bridge.
	Mirror keys.Mirror

	Policy    backoff.Policy
	Timing    coordinator.Timing
	BatchSize int
	Clock     backoff.Clock
	Logger    logger.Logger
	Audit     audit.Trail
}

// Session is one signed-in user's connection to the task store.
type Session struct {
	userID string
	name   string
	store  store.DocumentStore
	keys   *keys.Custodian
	codec  *codec.Codec
	coord  *coordinator.Coordinator
	mig    *migration.Migrator
	clock  backoff.Clock
	log    logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	mu      sync.Mutex
	peers   []string
	closed  bool
	closers []func(context.Context) error
}

// Open starts a session for opts.UserID. Key initialisation and the sync
// coordinator run in the background until Close is called or ctx is done;
// IsReady reports when the keys are loaded.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.UserID == "" {
		return nil, kerrors.ErrNotSignedIn
	}
	if opts.Store == nil {
		return nil, errors.New("session needs a document store")
	}
	if opts.Clock == nil {
		opts.Clock = backoff.Real{}
	}

	name := opts.DisplayName
	if name == "" {
		name = opts.Email
	}
	if name == "" {
		name = opts.UserID
	}

	s := &Session{
		userID: opts.UserID,
		name:   name,
		store:  opts.Store,
		clock:  opts.Clock,
		log:    opts.Logger.With("session"),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.keys = keys.NewCustodian(keys.Options{
		UserID: opts.UserID,
		Store:  opts.Store,
		Mirror: opts.Mirror,
		Policy: opts.Policy,
		Clock:  opts.Clock,
		Logger: opts.Logger,
		Audit:  opts.Audit,
	})
	s.codec = codec.New(s.keys, opts.Logger)
	s.peers = s.linkedPeers(s.ctx, opts.Peers)
	s.coord = coordinator.New(coordinator.Options{
		UserID: opts.UserID,
		Store:  opts.Store,
		Keys:   s.keys,
		Codec:  s.codec,
		Peers:  s.peers,
		Clock:  opts.Clock,
		Timing: opts.Timing,
		Logger: opts.Logger,
		Audit:  opts.Audit,
	})
	s.mig = migration.New(migration.Config{
		UserID:    opts.UserID,
		Store:     opts.Store,
		Keys:      s.keys,
		BatchSize: opts.BatchSize,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		Audit:     opts.Audit,
	})

	s.workers.Add(2)
	go func() {
		defer s.workers.Done()
		if err := s.keys.Initialize(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Errorf("key initialisation stopped: %v", err)
		}
	}()
	go func() {
		defer s.workers.Done()
		_ = s.coord.Run(s.ctx)
	}()

	s.log.Infof("session opened for %s with %d peers", s.userID, len(s.peers))
	return s, nil
}

// UserID returns the signed-in user's id.
func (s *Session) UserID() string { return s.userID }

// IsReady reports whether the user's keys are loaded.
func (s *Session) IsReady() bool {
	return s.keys.Ready()
}

// WaitReady blocks until the keys are loaded or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	return s.keys.WaitReady(ctx)
}

// KeyStatus summarises the key custodian.
func (s *Session) KeyStatus() keys.Status {
	return s.keys.Status()
}

// ReloadKeys discards every key held in memory and initialises them again,
// then reconnects the subscriptions so the view is decoded with the fresh
// keys.
func (s *Session) ReloadKeys(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.keys.ReloadKeys(ctx); err != nil {
		return fmt.Errorf("failed to reload keys: %w", err)
	}
	s.coord.NotifyWrite()
	return nil
}

// Tasks delivers the merged, decrypted view each time it changes. The channel
// is closed when the session ends.
func (s *Session) Tasks() <-chan coordinator.Snapshot {
	return s.coord.Updates()
}

// Snapshot returns the current view.
func (s *Session) Snapshot(ctx context.Context) (coordinator.Snapshot, error) {
	return s.coord.Snapshot(ctx)
}

// Peers returns the linked peers.
func (s *Session) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.peers)
}

// SetPeers replaces the linked peers. Tasks of peers no longer linked leave
// the view immediately.
func (s *Session) SetPeers(peers []string) {
	s.mu.Lock()
	s.peers = dedupe(s.userID, peers)
	peers = slices.Clone(s.peers)
	s.mu.Unlock()
	s.coord.SetPeers(peers)
}

// SetVisible pauses syncing while the application is hidden.
func (s *Session) SetVisible(visible bool) {
	s.coord.SetVisible(visible)
}

// SetOnline reports connectivity changes.
func (s *Session) SetOnline(online bool) {
	s.coord.SetOnline(online)
}

// Migrate runs the one-shot encryption pass over the user's legacy tasks.
func (s *Session) Migrate(ctx context.Context, opts migration.Options) (*migration.Result, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	res, err := s.mig.Run(ctx, opts)
	if err == nil && !opts.DryRun && res.TasksMigrated > 0 {
		s.coord.NotifyWrite()
	}
	return res, err
}

// MigrationStatus returns the stored migration status and whether one exists.
func (s *Session) MigrationStatus(ctx context.Context) (records.MigrationStatus, bool, error) {
	return s.mig.Status(ctx)
}

// Close stops the coordinator and key initialisation, waits for them to
// finish and releases the store. Calling Close more than once is safe.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.mu.Unlock()

	s.cancel()
	s.workers.Wait()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Infof("session closed for %s", s.userID)
	return errors.Join(errs...)
}

func (s *Session) onClose(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return kerrors.ErrSessionClosed
	}
	return nil
}

// wrote schedules the reconnect that follows every local write.
func (s *Session) wrote() {
	s.coord.NotifyWrite()
}

// linkedPeers merges the friends on the user's profile document with extra.
// A profile that cannot be read leaves only extra.
func (s *Session) linkedPeers(ctx context.Context, extra []string) []string {
	var peers []string
	doc, err := s.store.Get(ctx, records.UsersCollection, s.userID)
	switch {
	case err == nil:
		peers = friendsOf(doc)
	case kerrors.Is(err, kerrors.ErrNotFound):
	default:
		s.log.Warnf("could not read friends of %s: %v", s.userID, err)
	}
	return dedupe(s.userID, append(peers, extra...))
}

func friendsOf(doc store.Document) []string {
	v, ok := store.GetPath(doc.Fields, "friends")
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, f := range list {
			if id, ok := f.(string); ok {
				out = append(out, id)
			}
		}
		return out
	}
	return nil
}

func dedupe(self string, peers []string) []string {
	seen := map[string]bool{self: true, "": true}
	var out []string
	for _, p := range peers {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
