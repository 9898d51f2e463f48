package keys

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
)

// EncryptForSelf encrypts with the master key. Until the custodian is ready
// it returns the plaintext unchanged together with an error wrapping both
// ErrDegraded and ErrKeyUnavailable.
func (c *Custodian) EncryptForSelf(plaintext string) (string, error) {
	k, ok := c.masterKey()
	if !ok {
		c.log.Warnf("master key not loaded, not encrypting")
		return plaintext, fmt.Errorf("%w: %w", kerrors.ErrDegraded, kerrors.ErrKeyUnavailable)
	}
	return envelope.Encrypt(plaintext, k)
}

// DecryptForSelf decrypts with the master key. Plaintext passes through;
// anything that fails to decrypt becomes Placeholder.
func (c *Custodian) DecryptForSelf(payload string) string {
	if !envelope.LooksEncrypted(payload) {
		return payload
	}
	k, ok := c.masterKey()
	if !ok {
		return Placeholder
	}
	s, err := envelope.Decrypt(payload, k)
	if err != nil {
		c.log.Debugf("decrypt with master key failed: %v", err)
		return Placeholder
	}
	return s
}

// EncryptForFriend encrypts with the key shared with peerID. When that key
// cannot be obtained it returns the plaintext unchanged together with an
// error wrapping ErrDegraded, so callers can decide whether to store it.
func (c *Custodian) EncryptForFriend(ctx context.Context, plaintext, peerID string) (string, error) {
	k, err := c.SharedKey(ctx, peerID)
	if err != nil {
		c.log.Warnf("shared key with %s unavailable, not encrypting: %v", peerID, err)
		return plaintext, fmt.Errorf("%w: %v", kerrors.ErrDegraded, err)
	}
	return envelope.Encrypt(plaintext, k)
}

// DecryptFromFriend decrypts with the key shared with peerID. Plaintext
// passes through; failures become Placeholder.
func (c *Custodian) DecryptFromFriend(ctx context.Context, payload, peerID string) string {
	if !envelope.LooksEncrypted(payload) {
		return payload
	}
	if s, ok := c.tryShared(ctx, payload, peerID); ok {
		return s
	}
	return Placeholder
}

// DecryptComment decrypts a comment whose author may differ from the task
// owner. It tries the master key, then the key shared with the owner, then
// the key shared with the author, and returns Placeholder if all fail.
func (c *Custodian) DecryptComment(ctx context.Context, payload, ownerID, authorID string) string {
	if !envelope.LooksEncrypted(payload) {
		return payload
	}
	if k, ok := c.masterKey(); ok {
		if s, err := envelope.Decrypt(payload, k); err == nil {
			return s
		}
	}
	if ownerID != c.userID {
		if s, ok := c.tryShared(ctx, payload, ownerID); ok {
			return s
		}
	}
	if authorID != ownerID && authorID != c.userID {
		if s, ok := c.tryShared(ctx, payload, authorID); ok {
			return s
		}
	}
	c.log.Debugf("no key opens comment (owner %s, author %s)", ownerID, authorID)
	return Placeholder
}

func (c *Custodian) tryShared(ctx context.Context, payload, peerID string) (string, bool) {
	if peerID == "" || peerID == c.userID {
		return "", false
	}
	k, err := c.lookupSharedKey(ctx, peerID)
	if err != nil {
		c.log.Debugf("no shared key with %s: %v", peerID, err)
		return "", false
	}
	s, err := envelope.Decrypt(payload, k)
	if err != nil {
		c.log.Debugf("decrypt with key shared with %s failed: %v", peerID, err)
		return "", false
	}
	return s, true
}
