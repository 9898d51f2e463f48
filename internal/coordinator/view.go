package coordinator

import (
	"sort"

	"github.com/PolarWolf314/nudge/internal/codec"
)

func (c *Coordinator) setPeers(peers []string) {
	seen := map[string]bool{c.userID: true, "": true}
	c.peers = c.peers[:0:0]
	for _, p := range peers {
		if seen[p] {
			continue
		}
		seen[p] = true
		c.peers = append(c.peers, p)
	}
	c.peerSet = map[string]bool{}
	for _, p := range c.cappedPeers() {
		c.peerSet[p] = true
	}
}

// cappedPeers returns the peers covered by the peer subscription.
func (c *Coordinator) cappedPeers() []string {
	if len(c.peers) > c.timing.PeerCap {
		return c.peers[:c.timing.PeerCap]
	}
	return c.peers
}

// replaceOwn swaps every own entry for the tasks of a full own batch.
func (c *Coordinator) replaceOwn(tasks []codec.DecodedTask) {
	for id, d := range c.view {
		if d.Task.UserID == c.userID {
			delete(c.view, id)
		}
	}
	for _, d := range tasks {
		c.view[d.Task.ID] = d
	}
}

func (c *Coordinator) applyPeerChanges(upserts []codec.DecodedTask, removed []string) {
	for _, id := range removed {
		if d, ok := c.view[id]; ok && d.Task.UserID != c.userID {
			delete(c.view, id)
		}
	}
	for _, d := range upserts {
		if d.Hidden {
			delete(c.view, d.Task.ID)
			continue
		}
		c.view[d.Task.ID] = d
	}
	c.evictStrangers()
}

// evictStrangers drops entries owned by anyone outside the user and the
// subscribed peers.
func (c *Coordinator) evictStrangers() {
	for id, d := range c.view {
		owner := d.Task.UserID
		if owner != c.userID && !c.peerSet[owner] {
			delete(c.view, id)
		}
	}
}

func (c *Coordinator) ownTasks() []codec.DecodedTask {
	var out []codec.DecodedTask
	for _, d := range c.view {
		if d.Task.UserID == c.userID {
			out = append(out, d)
		}
	}
	return out
}

func (c *Coordinator) schedulePublish() {
	if c.timing.Debounce <= 0 {
		c.publish()
		return
	}
	if !c.pending(timerPublish) {
		c.arm(timerPublish, c.timing.Debounce)
	}
}

// publish replaces any unread snapshot with the current one.
func (c *Coordinator) publish() {
	s := c.snapshot()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- s:
	default:
	}
}

func (c *Coordinator) snapshot() Snapshot {
	tasks := make([]codec.DecodedTask, 0, len(c.view))
	for _, d := range c.view {
		if d.Hidden || d.Task.Deleted {
			continue
		}
		tasks = append(tasks, d)
	}
	sortTasks(tasks)

	cached := false
	for _, t := range c.tripped {
		cached = cached || t
	}
	return Snapshot{
		Tasks:         tasks,
		State:         c.state,
		ShowingCached: cached,
		Ready:         c.keys.Ready(),
	}
}

// sortTasks orders by order ascending, then newest first.
func sortTasks(tasks []codec.DecodedTask) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i].Task, tasks[j].Task
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
