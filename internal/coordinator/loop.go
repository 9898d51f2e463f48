package coordinator

import (
	"context"

	"github.com/PolarWolf314/nudge/internal/codec"
)

type eventKind int

const (
	evBatch eventKind = iota
	evSubFailed
	evKeysNotReady
	evKeysReady
	evSetPeers
	evVisible
	evOnline
	evWrote
	evQuery
	evTimer
)

type event struct {
	kind eventKind

	// Subscription events.
	sub     subKind
	gen     int
	upserts []codec.DecodedTask
	removed []string
	err     error

	peers []string
	flag  bool
	reply chan Snapshot

	timer timerKind
	seq   int
}

// Run opens the subscriptions and processes events until ctx is done. It
// returns after teardown has completed; the coordinator cannot be restarted.
func (c *Coordinator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx

	c.state = Subscribing
	c.openAll()
	c.armHealthCheck()

	for {
		select {
		case <-ctx.Done():
			c.teardown(cancel)
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev.kind {
	case evBatch:
		if !c.current(ev.sub, ev.gen) {
			return
		}
		if c.state == Subscribing {
			c.state = Active
		}
		if ev.sub == subOwn {
			c.replaceOwn(ev.upserts)
			c.backfill.consider(c.runCtx, ev.upserts, c.peers)
		} else {
			c.applyPeerChanges(ev.upserts, ev.removed)
		}
		c.schedulePublish()

	case evSubFailed:
		if !c.current(ev.sub, ev.gen) {
			return
		}
		c.subscriptionFailed(ev.sub, ev.err)

	case evKeysNotReady:
		if !c.current(ev.sub, ev.gen) {
			return
		}
		c.log.Debugf("%s batch arrived before keys were ready; deferring", ev.sub)
		c.closeAll()
		c.awaitKeys()

	case evKeysReady:
		c.waitingKeys = false
		c.requestReconnect()

	case evSetPeers:
		c.setPeers(ev.peers)
		c.evictStrangers()
		c.closeSub(subPeers)
		c.openSub(subPeers)
		c.backfill.consider(c.runCtx, c.ownTasks(), c.peers)
		c.schedulePublish()

	case evVisible:
		c.setVisible(ev.flag)

	case evOnline:
		c.setOnline(ev.flag)

	case evWrote:
		c.arm(timerWrite, c.timing.WriteReconnect)

	case evQuery:
		ev.reply <- c.snapshot()

	case evTimer:
		if !c.fired(ev.timer, ev.seq) {
			return
		}
		c.onTimer(ev.timer)
	}
}

func (c *Coordinator) setVisible(visible bool) {
	if visible == c.visible {
		return
	}
	c.visible = visible
	if !visible {
		c.stop(timerResume)
		c.closeAll()
		c.state = Paused
		c.log.Debugf("paused")
		c.schedulePublish()
		return
	}
	c.arm(timerResume, c.timing.ResumeSettle)
}

func (c *Coordinator) setOnline(online bool) {
	if online == c.online {
		return
	}
	c.online = online
	if !online {
		c.stop(timerNetwork)
		c.closeAll()
		c.log.Warnf("offline; subscriptions closed until the network returns")
		return
	}
	c.arm(timerNetwork, c.timing.NetworkRestore)
}

func (c *Coordinator) onTimer(kind timerKind) {
	switch kind {
	case timerPublish:
		c.publish()

	case timerResume:
		if !c.visible {
			return
		}
		ctx := c.runCtx
		c.spawn(func() {
			if err := c.keys.Refresh(ctx); err != nil {
				c.log.Debugf("key refresh on resume: %v", err)
			}
		})
		c.requestReconnect()

	case timerNetwork, timerWrite:
		c.requestReconnect()

	case timerReconnect:
		c.reconnect()

	case timerHealth:
		c.armHealthCheck()
		if c.idle() {
			c.log.Debugf("health check found idle subscriptions")
			c.requestReconnect()
		}
	}
}

func (c *Coordinator) armHealthCheck() {
	if c.timing.HealthCheck > 0 {
		c.arm(timerHealth, c.timing.HealthCheck)
	}
}

// spawn runs fn on a goroutine that teardown waits for. fn must not post
// events.
func (c *Coordinator) spawn(fn func()) {
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		fn()
	}()
}

func (c *Coordinator) teardown(cancel context.CancelFunc) {
	c.state = Teardown
	cancel()
	c.closeAll()
	c.stopAll()
	c.workers.Wait()
	c.publish()
	close(c.updates)
	close(c.done)
	c.log.Debugf("stopped")
}
