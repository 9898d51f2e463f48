package coordinator

import (
	"time"

	"github.com/PolarWolf314/nudge/internal/backoff"
)

type timerKind int

const (
	timerPublish timerKind = iota
	timerResume
	timerNetwork
	timerWrite
	timerReconnect
	timerHealth
)

// timerSlot holds the one live timer of a kind. Fired timers carry their
// sequence number so a stopped or replaced timer that already posted its
// event is ignored.
type timerSlot struct {
	seq   int
	timer backoff.Timer
}

// arm replaces any pending timer of kind with one firing after d.
func (c *Coordinator) arm(kind timerKind, d time.Duration) {
	c.stop(kind)
	c.timerSeq++
	seq := c.timerSeq
	t := c.clock.AfterFunc(d, func() {
		c.post(event{kind: evTimer, timer: kind, seq: seq})
	})
	c.timers[kind] = &timerSlot{seq: seq, timer: t}
}

func (c *Coordinator) stop(kind timerKind) {
	if s, ok := c.timers[kind]; ok {
		s.timer.Stop()
		delete(c.timers, kind)
	}
}

func (c *Coordinator) stopAll() {
	for kind := range c.timers {
		c.stop(kind)
	}
}

func (c *Coordinator) pending(kind timerKind) bool {
	_, ok := c.timers[kind]
	return ok
}

// fired consumes the slot for a timer event, reporting whether the event
// belongs to the live timer.
func (c *Coordinator) fired(kind timerKind, seq int) bool {
	s, ok := c.timers[kind]
	if !ok || s.seq != seq {
		return false
	}
	delete(c.timers, kind)
	return true
}
