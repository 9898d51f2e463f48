package keys

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keycache"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"

	"golang.org/x/sync/singleflight"
)

// Placeholder replaces any text that could not be decrypted.
const Placeholder = "[Couldn't decrypt]"

// Mirror receives copies of key material for the background agent.
type Mirror interface {
	Replace(ctx context.Context, userID string, e keycache.Entry) error
	PutFriend(ctx context.Context, userID, peerID, material string) error
}

// Options configures a Custodian.
type Options struct {
	UserID string
	Store  store.DocumentStore

	// Mirror is optional.
	Mirror Mirror

	Policy backoff.Policy
	Clock  backoff.Clock
	Logger logger.Logger
	Audit  audit.Trail
}

// Custodian owns one user's master key and the shared keys with that user's
// peers for the lifetime of a session.
type Custodian struct {
	userID string
	store  store.DocumentStore
	mirror Mirror
	policy backoff.Policy
	clock  backoff.Clock
	log    logger.Logger
	audit  audit.Trail

	mu         sync.RWMutex
	ready      bool
	readyCh    chan struct{}
	generation int
	master     envelope.Key
	shared     map[string]envelope.Key

	group singleflight.Group
}

// NewCustodian returns a custodian that is not yet ready; call Initialize.
func NewCustodian(opts Options) *Custodian {
	if opts.Clock == nil {
		opts.Clock = backoff.Real{}
	}
	if len(opts.Policy.Delays) == 0 && opts.Policy.Steady == 0 {
		opts.Policy = backoff.DefaultPolicy()
	}
	return &Custodian{
		userID:  opts.UserID,
		store:   opts.Store,
		mirror:  opts.Mirror,
		policy:  opts.Policy,
		clock:   opts.Clock,
		log:     opts.Logger.With("keys"),
		audit:   opts.Audit,
		readyCh: make(chan struct{}),
		shared:  map[string]envelope.Key{},
	}
}

// UserID returns the id of the user whose keys this custodian holds.
func (c *Custodian) UserID() string { return c.userID }

// Initialize fetches or creates the master key and loads every shared key
// from the user's key record. Failures are retried on the backoff policy
// until success or until ctx is cancelled; a temporary key is never used.
func (c *Custodian) Initialize(ctx context.Context) error {
	return backoff.Retry(ctx, c.policy, c.clock, c.load, func(attempt int, err error, next time.Duration) {
		c.log.Warnf("master key unavailable (attempt %d): %v; retrying in %s", attempt+1, err, next)
	})
}

// Ready reports whether the master key is loaded.
func (c *Custodian) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// WaitReady blocks until the master key is loaded or ctx is done.
func (c *Custodian) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	ch := c.readyCh
	c.mu.RUnlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", kerrors.ErrKeyUnavailable, ctx.Err())
	}
}

// ReloadKeys discards every key held in memory and initialises again.
func (c *Custodian) ReloadKeys(ctx context.Context) error {
	c.mu.Lock()
	c.master.Zero()
	c.shared = map[string]envelope.Key{}
	if c.ready {
		c.readyCh = make(chan struct{})
	}
	c.ready = false
	c.generation++
	c.mu.Unlock()

	c.audit.Log(audit.Entry{Operation: audit.OpKeysReloaded})
	c.log.Infof("reloading keys for %s", c.userID)
	return c.Initialize(ctx)
}

// Refresh re-reads the key record, picking up shared keys peers created, and
// mirrors it to the local cache. It does not retry.
func (c *Custodian) Refresh(ctx context.Context) error {
	if !c.Ready() {
		return kerrors.ErrKeyUnavailable
	}
	return c.load(ctx)
}

// Status summarises the custodian for display.
type Status struct {
	UserID string
	Ready  bool
	// SharedWith lists the peers a shared key is currently held for.
	SharedWith []string
}

func (c *Custodian) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peers := make([]string, 0, len(c.shared))
	for p := range c.shared {
		peers = append(peers, p)
	}
	sort.Strings(peers)
	return Status{UserID: c.userID, Ready: c.ready, SharedWith: peers}
}

func (c *Custodian) load(ctx context.Context) error {
	rec, err := c.readKeyRecord(ctx, c.userID)
	if err != nil {
		return err
	}

	material := rec.MasterKey
	if material == "" {
		material, err = c.createMasterKey(ctx)
		if err != nil {
			return err
		}
	}
	master, err := envelope.ImportKey(material)
	if err != nil {
		return fmt.Errorf("master key record for %s is corrupt: %w", c.userID, err)
	}

	shared := make(map[string]envelope.Key, len(rec.FriendKeys))
	for peer, m := range rec.FriendKeys {
		k, err := envelope.ImportKey(m)
		if err != nil {
			c.log.Warnf("skipping unreadable shared key for %s: %v", peer, err)
			continue
		}
		shared[peer] = k
	}

	c.mu.Lock()
	c.master = master
	for peer, k := range shared {
		c.shared[peer] = k
	}
	if !c.ready {
		c.ready = true
		close(c.readyCh)
	}
	c.mu.Unlock()

	c.log.Infof("loaded master key and %d shared keys for %s", len(shared), c.userID)
	c.mirrorAll(ctx, material, rec.FriendKeys)
	return nil
}

func (c *Custodian) createMasterKey(ctx context.Context) (string, error) {
	k, err := envelope.NewKey()
	if err != nil {
		return "", err
	}
	defer k.Zero()

	stored, created, err := c.store.SetFieldIfAbsent(ctx, records.UserKeysCollection, c.userID, "masterKey", k.Export())
	if err != nil {
		return "", fmt.Errorf("failed to store master key: %w", err)
	}
	material, ok := stored.(string)
	if !ok {
		return "", fmt.Errorf("master key for %s has unexpected type %T", c.userID, stored)
	}
	if created {
		c.touch(ctx, c.userID)
		c.audit.Log(audit.Entry{Operation: audit.OpMasterKeyCreated})
		c.log.Infof("created master key for %s", c.userID)
	}
	return material, nil
}

func (c *Custodian) readKeyRecord(ctx context.Context, userID string) (records.KeyRecord, error) {
	doc, err := c.store.Get(ctx, records.UserKeysCollection, userID)
	if kerrors.Is(err, kerrors.ErrNotFound) {
		return records.KeyRecord{UserID: userID}, nil
	}
	if err != nil {
		return records.KeyRecord{}, fmt.Errorf("failed to read key record for %s: %w", userID, err)
	}
	return records.DecodeKeyRecord(userID, doc.Fields)
}

func (c *Custodian) touch(ctx context.Context, userID string) {
	err := c.store.Update(ctx, records.UserKeysCollection, userID, map[string]any{
		"lastUpdated": c.clock.Now().UTC(),
	})
	if err != nil {
		c.log.Debugf("failed to stamp key record for %s: %v", userID, err)
	}
}

func (c *Custodian) masterKey() (envelope.Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.master, c.ready
}

func (c *Custodian) mirrorAll(ctx context.Context, master string, friends map[string]string) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Replace(ctx, c.userID, keycache.Entry{MasterKey: master, FriendKeys: friends}); err != nil {
		c.log.Warnf("failed to refresh local key cache: %v", err)
	}
}

func (c *Custodian) mirrorFriend(ctx context.Context, peer, material string) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.PutFriend(ctx, c.userID, peer, material); err != nil {
		c.log.Warnf("failed to cache shared key for %s: %v", peer, err)
	}
}
