package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/records"
)

// errNoSharedKey means no shared key exists yet for a pair.
var errNoSharedKey = errors.New("no shared key for pair")

// PairID names the shared key of an unordered pair of users.
func PairID(a, b string) string {
	lo, hi := ordered(a, b)
	return "shared_" + lo + "_" + hi
}

func ordered(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// SharedKey returns the key shared with peerID, creating it if neither side
// has one yet.
//
// The lookup order is the in-memory cache, this user's key record, then the
// peer's record. A new key is first written to the record of the smaller user
// id with set-if-absent; whichever value lands there is copied to the other
// record, so two users creating the key at once still end up with one key.
// Concurrent calls for the same peer within this process share one lookup.
func (c *Custodian) SharedKey(ctx context.Context, peerID string) (envelope.Key, error) {
	return c.sharedKey(ctx, peerID, true)
}

// lookupSharedKey is SharedKey without creation, used on read paths: if no
// key exists, nothing can have been encrypted with it.
func (c *Custodian) lookupSharedKey(ctx context.Context, peerID string) (envelope.Key, error) {
	return c.sharedKey(ctx, peerID, false)
}

func (c *Custodian) sharedKey(ctx context.Context, peerID string, create bool) (envelope.Key, error) {
	if peerID == "" || peerID == c.userID {
		return envelope.Key{}, fmt.Errorf("%w: invalid peer %q", kerrors.ErrKeyUnavailable, peerID)
	}

	c.mu.RLock()
	k, ok := c.shared[peerID]
	ready := c.ready
	c.mu.RUnlock()
	if ok {
		return k, nil
	}
	if !ready {
		return envelope.Key{}, kerrors.ErrKeyUnavailable
	}

	flight := "get:" + peerID
	if create {
		flight = "create:" + peerID
	}
	v, err, _ := c.group.Do(flight, func() (any, error) {
		return c.fetchSharedKey(ctx, peerID, create)
	})
	if err != nil {
		return envelope.Key{}, err
	}
	return v.(envelope.Key), nil
}

func (c *Custodian) fetchSharedKey(ctx context.Context, peerID string, create bool) (envelope.Key, error) {
	c.mu.RLock()
	k, ok := c.shared[peerID]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return k, nil
	}

	own, err := c.readKeyRecord(ctx, c.userID)
	if err != nil {
		return envelope.Key{}, fmt.Errorf("%w: %v", kerrors.ErrKeyUnavailable, err)
	}
	if material := own.FriendKeys[peerID]; material != "" {
		return c.adopt(ctx, gen, peerID, material)
	}

	peer, err := c.readKeyRecord(ctx, peerID)
	if err != nil {
		return envelope.Key{}, fmt.Errorf("%w: %v", kerrors.ErrKeyUnavailable, err)
	}
	if material := peer.FriendKeys[c.userID]; material != "" {
		winner, _, err := c.converge(ctx, peerID, material)
		if err != nil {
			return envelope.Key{}, err
		}
		return c.adopt(ctx, gen, peerID, winner)
	}

	if !create {
		return envelope.Key{}, fmt.Errorf("%w: %s", errNoSharedKey, PairID(c.userID, peerID))
	}

	fresh, err := envelope.NewKey()
	if err != nil {
		return envelope.Key{}, err
	}
	defer fresh.Zero()

	winner, created, err := c.converge(ctx, peerID, fresh.Export())
	if err != nil {
		return envelope.Key{}, err
	}
	if created {
		c.audit.Log(audit.Entry{Operation: audit.OpSharedKeyCreated, Peer: peerID, PairID: PairID(c.userID, peerID)})
		c.log.Infof("created shared key %s", PairID(c.userID, peerID))
	}
	return c.adopt(ctx, gen, peerID, winner)
}

// converge settles the pair's key on the arbiter record (smaller user id)
// and copies the winner to the other record. It reports whether candidate
// became the pair's key.
func (c *Custodian) converge(ctx context.Context, peerID, candidate string) (string, bool, error) {
	lo, hi := ordered(c.userID, peerID)

	stored, created, err := c.store.SetFieldIfAbsent(ctx, records.UserKeysCollection, lo, records.FieldPath("friendKeys", hi), candidate)
	if err != nil {
		return "", false, fmt.Errorf("%w: storing shared key %s: %v", kerrors.ErrKeyUnavailable, PairID(lo, hi), err)
	}
	winner, ok := stored.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: shared key %s has unexpected type %T", kerrors.ErrKeyUnavailable, PairID(lo, hi), stored)
	}

	path := records.FieldPath("friendKeys", lo)
	other, _, err := c.store.SetFieldIfAbsent(ctx, records.UserKeysCollection, hi, path, winner)
	if err != nil {
		return "", false, fmt.Errorf("%w: copying shared key %s: %v", kerrors.ErrKeyUnavailable, PairID(lo, hi), err)
	}
	if other != winner {
		c.log.Warnf("repairing divergent copy of %s on %s", PairID(lo, hi), hi)
		if err := c.store.Update(ctx, records.UserKeysCollection, hi, map[string]any{path: winner}); err != nil {
			return "", false, fmt.Errorf("%w: repairing shared key %s: %v", kerrors.ErrKeyUnavailable, PairID(lo, hi), err)
		}
	}
	c.touch(ctx, c.userID)
	return winner, created, nil
}

func (c *Custodian) adopt(ctx context.Context, gen int, peerID, material string) (envelope.Key, error) {
	k, err := envelope.ImportKey(material)
	if err != nil {
		return envelope.Key{}, fmt.Errorf("%w: shared key %s: %v", kerrors.ErrKeyUnavailable, PairID(c.userID, peerID), err)
	}

	c.mu.Lock()
	current := c.generation == gen
	if current {
		c.shared[peerID] = k
	}
	c.mu.Unlock()

	if current {
		c.mirrorFriend(ctx, peerID, material)
	}
	return k, nil
}
