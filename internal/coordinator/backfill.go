package coordinator

import (
	"context"
	"strings"
	"sync"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/codec"
	"github.com/PolarWolf314/nudge/internal/envelope"
	"github.com/PolarWolf314/nudge/internal/records"
)

// backfiller adds friend content for peers an own task is visible to but
// was never encrypted for. Each (task, missing peers) pair is attempted once
// per session.
type backfiller struct {
	c *Coordinator

	mu        sync.Mutex
	attempted map[string]bool
}

func newBackfiller(c *Coordinator) *backfiller {
	return &backfiller{c: c, attempted: map[string]bool{}}
}

func (b *backfiller) consider(ctx context.Context, tasks []codec.DecodedTask, peers []string) {
	if len(peers) == 0 {
		return
	}
	for _, d := range tasks {
		t := d.Task
		if t.UserID != b.c.userID || t.Deleted || d.Undecryptable() || !envelope.LooksEncrypted(t.Text) {
			continue
		}
		missing := codec.MissingPeers(t, peers)
		if len(missing) == 0 || !b.claim(t.ID+"|"+strings.Join(missing, ",")) {
			continue
		}
		b.c.spawn(func() { b.run(ctx, d, missing) })
	}
}

func (b *backfiller) claim(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempted[key] {
		return false
	}
	b.attempted[key] = true
	return true
}

func (b *backfiller) run(ctx context.Context, d codec.DecodedTask, missing []string) {
	log := b.c.log
	fields, covered := b.c.codec.BackfillFields(ctx, d, missing)
	if len(fields) == 0 {
		log.Debugf("no shared keys available to backfill task %s", d.Task.ID)
		return
	}
	if err := b.c.store.Update(ctx, records.TasksCollection, d.Task.ID, fields); err != nil {
		log.Warnf("backfill of task %s failed: %v", d.Task.ID, err)
		return
	}
	b.c.audit.Log(audit.Entry{Operation: audit.OpBackfill, TaskID: d.Task.ID, Count: len(covered)})
	log.Infof("backfilled task %s for %s", d.Task.ID, strings.Join(covered, ", "))
}
