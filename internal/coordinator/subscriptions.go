package coordinator

import (
	"context"

	"github.com/PolarWolf314/nudge/internal/codec"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"
)

type subKind int

const (
	subOwn subKind = iota
	subPeers
)

func (k subKind) String() string {
	if k == subOwn {
		return "own"
	}
	return "peer"
}

type activeSub struct {
	sub store.Subscription
	gen int
}

func (c *Coordinator) query(kind subKind) store.Query {
	q := store.NewQuery(records.TasksCollection)
	if kind == subOwn {
		return q.Where(store.Eq("userId", c.userID)).OrderBy("createdAt", true)
	}
	return q.Where(store.In("userId", c.cappedPeers()...)).Where(store.Eq("isPrivate", false))
}

// wanted reports whether kind should currently have a live subscription.
func (c *Coordinator) wanted(kind subKind) bool {
	if c.tripped[kind] || !c.visible || !c.online || c.state == Teardown {
		return false
	}
	return kind == subOwn || len(c.peerSet) > 0
}

func (c *Coordinator) current(kind subKind, gen int) bool {
	s, ok := c.subs[kind]
	return ok && s.gen == gen
}

func (c *Coordinator) openAll() {
	c.openSub(subOwn)
	c.openSub(subPeers)
}

func (c *Coordinator) openSub(kind subKind) {
	if _, open := c.subs[kind]; open || !c.wanted(kind) || c.waitingKeys {
		return
	}
	if !c.keys.Ready() {
		c.awaitKeys()
		return
	}

	q := c.query(kind)
	sub, err := c.store.Subscribe(c.runCtx, q)
	if err != nil {
		c.subscriptionFailed(kind, err)
		return
	}
	c.gen++
	c.subs[kind] = &activeSub{sub: sub, gen: c.gen}
	if c.state != Active {
		c.state = Subscribing
	}
	c.log.Debugf("subscribed to %s", q)
	go c.forward(c.runCtx, kind, c.gen, sub)
}

func (c *Coordinator) closeSub(kind subKind) {
	s, ok := c.subs[kind]
	if !ok {
		return
	}
	delete(c.subs, kind)
	s.sub.Close()
}

func (c *Coordinator) closeAll() {
	c.closeSub(subOwn)
	c.closeSub(subPeers)
}

// idle reports whether a subscription that should be live is not.
func (c *Coordinator) idle() bool {
	if c.waitingKeys {
		return false
	}
	for _, kind := range []subKind{subOwn, subPeers} {
		if _, open := c.subs[kind]; !open && c.wanted(kind) {
			return true
		}
	}
	return false
}

// reconnect closes and reopens every wanted subscription.
func (c *Coordinator) reconnect() {
	if !c.visible || !c.online || c.state == Teardown {
		return
	}
	c.closeAll()
	c.openAll()
}

// requestReconnect reconnects now or as soon as the limiter allows. At most
// one throttled reconnect is pending at a time.
func (c *Coordinator) requestReconnect() {
	if c.pending(timerReconnect) {
		return
	}
	now := c.clock.Now()
	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return
	}
	if d := r.DelayFrom(now); d > 0 {
		c.log.Debugf("reconnect throttled for %s", d)
		c.arm(timerReconnect, d)
		return
	}
	c.reconnect()
}

// awaitKeys waits for the custodian in the background, then requests a
// reconnect. Only one wait runs at a time.
func (c *Coordinator) awaitKeys() {
	if c.waitingKeys {
		return
	}
	c.waitingKeys = true
	ctx := c.runCtx
	go func() {
		if err := c.keys.WaitReady(ctx); err != nil {
			return
		}
		c.post(event{kind: evKeysReady})
	}()
}

func (c *Coordinator) subscriptionFailed(kind subKind, err error) {
	c.closeSub(kind)
	switch {
	case kerrors.Is(err, kerrors.ErrQuotaExhausted):
		c.tripped[kind] = true
		c.log.Warnf("%s subscription stopped: %v; showing cached tasks", kind, err)
		c.schedulePublish()
	case kerrors.Is(err, kerrors.ErrNetworkUnavailable):
		c.log.Warnf("%s subscription lost the network; waiting to reconnect", kind)
	default:
		c.log.Warnf("%s subscription failed: %v", kind, err)
	}
}

// forward decodes batches off the loop goroutine and posts the results.
func (c *Coordinator) forward(ctx context.Context, kind subKind, gen int, sub store.Subscription) {
	for b := range sub.Batches() {
		if b.Err != nil {
			c.post(event{kind: evSubFailed, sub: kind, gen: gen, err: b.Err})
			return
		}
		if !c.keys.Ready() {
			c.post(event{kind: evKeysNotReady, sub: kind, gen: gen})
			return
		}

		ev := event{kind: evBatch, sub: kind, gen: gen}
		if kind == subOwn {
			for _, doc := range b.Docs {
				if d, ok := c.decode(ctx, doc); ok {
					ev.upserts = append(ev.upserts, d)
				}
			}
		} else {
			for _, ch := range b.Changes {
				if ch.Kind == store.Removed {
					ev.removed = append(ev.removed, ch.Doc.ID)
					continue
				}
				d, ok := c.decode(ctx, ch.Doc)
				if !ok {
					ev.removed = append(ev.removed, ch.Doc.ID)
					continue
				}
				ev.upserts = append(ev.upserts, d)
			}
		}
		c.post(ev)
	}
}

func (c *Coordinator) decode(ctx context.Context, doc store.Document) (codec.DecodedTask, bool) {
	t, err := records.DecodeTask(doc.ID, doc.Fields)
	if err != nil {
		c.log.Warnf("skipping task %s: %v", doc.ID, err)
		return codec.DecodedTask{}, false
	}
	return c.codec.DecodeTask(ctx, t, c.userID), true
}
