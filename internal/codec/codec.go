package codec

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keys"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/records"

	"github.com/google/uuid"
)

// PrivatePlaceholder is shown to peers in place of a task they may not read.
const PrivatePlaceholder = "[Private task]"

// Bundle is one plaintext encrypted for its owner and for each peer.
type Bundle struct {
	Owner   string
	Friends map[string]string
}

// Codec encrypts record fields on write and decrypts them on read using the
// keys held by a custodian. The custodian's user is the writer on encode and
// the viewer on decode.
type Codec struct {
	keys *keys.Custodian
	log  logger.Logger
	now  func() time.Time
}

// New returns a codec using k.
func New(k *keys.Custodian, log logger.Logger) *Codec {
	return &Codec{keys: k, log: log.With("codec"), now: time.Now}
}

// EncodeForWrite encrypts plaintext once with the owner's master key and once
// per peer with the pair's shared key. Peers whose shared key cannot be
// obtained are left out; backfill adds them later. While the master key is
// still loading the owner copy is the plaintext, which a forced migration
// encrypts later.
func (c *Codec) EncodeForWrite(ctx context.Context, plaintext, ownerID string, peerIDs []string) (Bundle, error) {
	if ownerID != c.keys.UserID() {
		return Bundle{}, kerrors.ErrNotOwner
	}
	owner, err := c.keys.EncryptForSelf(plaintext)
	if err != nil && !kerrors.Is(err, kerrors.ErrDegraded) {
		return Bundle{}, err
	}
	return Bundle{Owner: owner, Friends: c.encryptForPeers(ctx, plaintext, ownerID, peerIDs)}, nil
}

func (c *Codec) encryptForPeers(ctx context.Context, plaintext, ownerID string, peerIDs []string) map[string]string {
	friends := map[string]string{}
	for _, peer := range peerIDs {
		if peer == ownerID || peer == "" {
			continue
		}
		if _, done := friends[peer]; done {
			continue
		}
		ct, err := c.keys.EncryptForFriend(ctx, plaintext, peer)
		if err != nil {
			c.log.Warnf("leaving %s out of friend content: %v", peer, err)
			continue
		}
		friends[peer] = ct
	}
	return friends
}

// SealTask encrypts text and notes into t for its owner and for every peer
// allowed to view it. Private tasks get empty friend content.
func (c *Codec) SealTask(ctx context.Context, t *records.Task, text, notes string, peers []string) error {
	allowed := t.AllowedPeers(peers)

	textBundle, err := c.EncodeForWrite(ctx, text, t.UserID, allowed)
	if err != nil {
		return err
	}
	t.Text = textBundle.Owner
	t.FriendContent = textBundle.Friends

	t.Notes = ""
	t.NotesFriendContent = nil
	if notes != "" {
		notesBundle, err := c.EncodeForWrite(ctx, notes, t.UserID, allowed)
		if err != nil {
			return err
		}
		t.Notes = notesBundle.Owner
		t.NotesFriendContent = notesBundle.Friends
	}
	return nil
}

// EncodeComment builds an encrypted comment by authorID on task. The owner's
// comments are encrypted with the master key plus friend content for every
// allowed peer; a peer's comments are encrypted with the key shared with the
// owner.
func (c *Codec) EncodeComment(ctx context.Context, text string, task records.Task, authorID, authorName string, peers []string) (records.Comment, error) {
	if len(text) > records.MaxCommentLength {
		return records.Comment{}, fmt.Errorf("comment is %d characters, limit is %d", len(text), records.MaxCommentLength)
	}
	if authorID != c.keys.UserID() {
		return records.Comment{}, kerrors.ErrNotOwner
	}

	comment := records.Comment{
		ID:        uuid.NewString(),
		UserID:    authorID,
		UserName:  authorName,
		Timestamp: c.now().UTC(),
	}

	if authorID == task.UserID {
		bundle, err := c.EncodeForWrite(ctx, text, authorID, task.AllowedPeers(peers))
		if err != nil {
			return records.Comment{}, err
		}
		comment.Text = bundle.Owner
		if len(bundle.Friends) > 0 {
			comment.FriendContent = bundle.Friends
		}
		return comment, nil
	}

	ct, err := c.keys.EncryptForFriend(ctx, text, task.UserID)
	if err != nil {
		// The owner is the only reader; storing plaintext would expose it
		// to the store instead.
		return records.Comment{}, fmt.Errorf("%w: %v", kerrors.ErrKeyUnavailable, err)
	}
	comment.Text = ct
	return comment, nil
}

// EncryptNotificationText encrypts an excerpt for a notification recipient
// with the shared key, so only the recipient's background agent can read it.
func (c *Codec) EncryptNotificationText(ctx context.Context, text, recipientID string) (string, error) {
	if text == "" {
		return "", nil
	}
	ct, err := c.keys.EncryptForFriend(ctx, text, recipientID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kerrors.ErrKeyUnavailable, err)
	}
	return ct, nil
}

// MissingPeers returns the allowed peers that have no friend content on an
// own, shareable task.
func MissingPeers(t records.Task, peers []string) []string {
	var missing []string
	for _, p := range t.AllowedPeers(peers) {
		_, hasText := t.FriendContent[p]
		_, hasNotes := t.NotesFriendContent[p]
		if !hasText || (t.Notes != "" && !hasNotes) {
			missing = append(missing, p)
		}
	}
	slices.Sort(missing)
	return missing
}

// BackfillFields encrypts already decoded text and notes for the given peers
// and returns the dotted field updates to write, plus the peers covered.
func (c *Codec) BackfillFields(ctx context.Context, d DecodedTask, peers []string) (map[string]any, []string) {
	fields := map[string]any{}
	var covered []string
	for _, p := range peers {
		if !d.Task.CanView(p) {
			continue
		}
		wrote := false
		if _, ok := d.Task.FriendContent[p]; !ok {
			ct, err := c.keys.EncryptForFriend(ctx, d.Text, p)
			if err != nil {
				continue
			}
			fields[records.FieldPath("friendContent", p)] = ct
			wrote = true
		}
		if d.Task.Notes != "" {
			if _, ok := d.Task.NotesFriendContent[p]; !ok {
				ct, err := c.keys.EncryptForFriend(ctx, d.Notes, p)
				if err == nil {
					fields[records.FieldPath("notesFriendContent", p)] = ct
					wrote = true
				}
			}
		}
		if wrote {
			covered = append(covered, p)
		}
	}
	return fields, covered
}

// IsEncrypted reports whether every user-authored field of t is in the
// encrypted format.
func IsEncrypted(t records.Task) bool {
	if !envelope.LooksEncrypted(t.Text) {
		return false
	}
	if t.Notes != "" && !envelope.LooksEncrypted(t.Notes) {
		return false
	}
	for _, cm := range t.Comments {
		if !envelope.LooksEncrypted(cm.Text) {
			return false
		}
	}
	return true
}
