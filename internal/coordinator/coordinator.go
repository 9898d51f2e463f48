package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/codec"
	"github.com/PolarWolf314/nudge/internal/keys"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/store"

	"golang.org/x/time/rate"
)

// State is the lifecycle state of a coordinator.
type State int

const (
	Uninitialized State = iota
	Subscribing
	Active
	Paused
	Teardown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Teardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Timing holds the coordinator's delays.
type Timing struct {
	// Debounce coalesces view updates. Zero publishes every change.
	Debounce time.Duration

	// ResumeSettle is the wait after becoming visible before resubscribing.
	ResumeSettle time.Duration

	// NetworkRestore is the wait after coming online before resubscribing.
	NetworkRestore time.Duration

	// HealthCheck is the interval of the idle-subscription check.
	HealthCheck time.Duration

	// WriteReconnect is the wait after a write before the forced reconnect.
	WriteReconnect time.Duration

	// PeerCap bounds how many peers the peer subscription covers.
	PeerCap int
}

// DefaultTiming returns the production delays.
func DefaultTiming() Timing {
	return Timing{
		Debounce:       100 * time.Millisecond,
		ResumeSettle:   500 * time.Millisecond,
		NetworkRestore: time.Second,
		HealthCheck:    30 * time.Second,
		WriteReconnect: 300 * time.Millisecond,
		PeerCap:        store.MaxInValues,
	}
}

// Snapshot is a published view of the merged task list.
type Snapshot struct {
	Tasks []codec.DecodedTask
	State State

	// ShowingCached is set once a subscription has been stopped by quota
	// exhaustion; Tasks is then the last good view.
	ShowingCached bool

	// Ready reports whether the key custodian is initialised.
	Ready bool
}

// Options configures a Coordinator.
type Options struct {
	UserID string
	Store  store.DocumentStore
	Keys   *keys.Custodian
	Codec  *codec.Codec
	Peers  []string

	Clock  backoff.Clock
	Timing Timing
	Logger logger.Logger
	Audit  audit.Trail

	// Limiter throttles reconnects. Nil uses one reconnect per two seconds
	// with a burst of three.
	Limiter *rate.Limiter
}

// Coordinator maintains the merged, decrypted view of the user's own tasks
// and the tasks shared by the user's peers.
//
// All state is owned by the goroutine running Run. Other methods post
// events to it and are safe for concurrent use while Run is running.
type Coordinator struct {
	userID  string
	store   store.DocumentStore
	keys    *keys.Custodian
	codec   *codec.Codec
	clock   backoff.Clock
	timing  Timing
	log     logger.Logger
	audit   audit.Trail
	limiter *rate.Limiter

	events  chan event
	updates chan Snapshot
	done    chan struct{}

	// Loop-owned state below.
	state       State
	peers       []string
	peerSet     map[string]bool
	visible     bool
	online      bool
	view        map[string]codec.DecodedTask
	subs        map[subKind]*activeSub
	tripped     map[subKind]bool
	gen         int
	waitingKeys bool
	timers      map[timerKind]*timerSlot
	timerSeq    int
	backfill    *backfiller
	runCtx      context.Context
	workers     sync.WaitGroup
}

// New returns a coordinator. Call Run to start it.
func New(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = backoff.Real{}
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Timing.PeerCap <= 0 || opts.Timing.PeerCap > store.MaxInValues {
		opts.Timing.PeerCap = store.MaxInValues
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(2*time.Second), 3)
	}

	c := &Coordinator{
		userID:  opts.UserID,
		store:   opts.Store,
		keys:    opts.Keys,
		codec:   opts.Codec,
		clock:   opts.Clock,
		timing:  opts.Timing,
		log:     opts.Logger.With("coordinator"),
		audit:   opts.Audit,
		limiter: opts.Limiter,
		events:  make(chan event, 64),
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
		visible: true,
		online:  true,
		view:    map[string]codec.DecodedTask{},
		subs:    map[subKind]*activeSub{},
		tripped: map[subKind]bool{},
		timers:  map[timerKind]*timerSlot{},
	}
	c.setPeers(opts.Peers)
	c.backfill = newBackfiller(c)
	return c
}

// Updates delivers published snapshots. Only the latest unread snapshot is
// kept. The channel is closed when Run returns.
func (c *Coordinator) Updates() <-chan Snapshot {
	return c.updates
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// SetPeers replaces the linked-peer set. Records owned by removed peers are
// evicted immediately.
func (c *Coordinator) SetPeers(peers []string) {
	c.post(event{kind: evSetPeers, peers: append([]string(nil), peers...)})
}

// SetVisible pauses the coordinator when the app is hidden and resumes it,
// after a settle delay, when visible again.
func (c *Coordinator) SetVisible(visible bool) {
	c.post(event{kind: evVisible, flag: visible})
}

// SetOnline reports network connectivity changes.
func (c *Coordinator) SetOnline(online bool) {
	c.post(event{kind: evOnline, flag: online})
}

// NotifyWrite schedules a forced reconnect shortly after a local write.
func (c *Coordinator) NotifyWrite() {
	c.post(event{kind: evWrote})
}

// Snapshot returns the current view, bypassing the debounce. It waits for
// every event posted before it to be handled.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	c.post(event{kind: evQuery, reply: reply})
	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return Snapshot{State: Teardown}, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
