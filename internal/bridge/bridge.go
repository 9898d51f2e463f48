package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/envelope"
	"github.com/PolarWolf314/nudge/internal/keys"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/records"
)

// Placeholders shown when an excerpt cannot be decrypted.
const (
	TaskPlaceholder    = "[Task]"
	MessagePlaceholder = "[Message]"
)

// DefaultRelockAfter is how long keys stay in memory after their last use.
const DefaultRelockAfter = 5 * time.Minute

// KeySource looks up cached shared keys. *keycache.Cache implements it.
type KeySource interface {
	FriendKey(ctx context.Context, userID, peerID string) (string, bool, error)
}

// Options configures a Bridge.
type Options struct {
	// UserID is the recipient whose cached keys are used.
	UserID string
	Cache  KeySource

	// RelockAfter drops keys from memory after this much idle time. Zero
	// uses DefaultRelockAfter.
	RelockAfter time.Duration

	Clock  backoff.Clock
	Logger logger.Logger
}

// Preview is the decrypted content of a push payload. A field that could
// not be decrypted is empty.
type Preview struct {
	Title       string
	Message     string
	TaskText    string
	CommentText string
}

// Bridge decrypts push previews from the durable key cache without a
// running session. It never creates keys.
type Bridge struct {
	userID      string
	cache       KeySource
	relockAfter time.Duration
	clock       backoff.Clock
	log         logger.Logger

	mu     sync.Mutex
	keys   map[string]envelope.Key
	relock backoff.Timer
}

// New returns a bridge for opts.UserID.
func New(opts Options) *Bridge {
	if opts.RelockAfter <= 0 {
		opts.RelockAfter = DefaultRelockAfter
	}
	if opts.Clock == nil {
		opts.Clock = backoff.Real{}
	}
	return &Bridge{
		userID:      opts.UserID,
		cache:       opts.Cache,
		relockAfter: opts.RelockAfter,
		clock:       opts.Clock,
		log:         opts.Logger.With("bridge"),
		keys:        map[string]envelope.Key{},
	}
}

// DecryptPreview decrypts the excerpts of p with the key shared with its
// sender. It returns false when no key for the sender is cached; the caller
// then shows the generic preview.
func (b *Bridge) DecryptPreview(ctx context.Context, p records.PushPayload) (Preview, bool) {
	if p.FromUserID == "" {
		return Preview{}, false
	}
	k, ok := b.key(ctx, p.FromUserID)
	if !ok {
		return Preview{}, false
	}
	return Preview{
		Title:       p.Title,
		Message:     b.open(p.Message, k),
		TaskText:    b.open(p.TaskText, k),
		CommentText: b.open(p.CommentText, k),
	}, true
}

// Render builds the title and body of the notification for p. Excerpts that
// cannot be decrypted become TaskPlaceholder or MessagePlaceholder, so
// ciphertext is never displayed.
func (b *Bridge) Render(ctx context.Context, p records.PushPayload) (title, body string) {
	preview, ok := b.DecryptPreview(ctx, p)
	if !ok {
		return Format(p)
	}
	decoded := p
	decoded.Title = preview.Title
	decoded.Message = decodedOr(p.Message, preview.Message)
	decoded.TaskText = decodedOr(p.TaskText, preview.TaskText)
	decoded.CommentText = decodedOr(p.CommentText, preview.CommentText)
	return Format(decoded)
}

// Format builds the title and body for a payload whose excerpts have already
// been decrypted. Excerpts still holding ciphertext or keys.Placeholder are
// replaced with TaskPlaceholder or MessagePlaceholder.
func Format(p records.PushPayload) (title, body string) {
	message := placeholder(p.Message, MessagePlaceholder)
	comment := placeholder(p.CommentText, MessagePlaceholder)

	switch {
	case p.Type == records.NotificationComment && comment != "":
		return p.Title, fmt.Sprintf("%s: %q", p.FromUserName, comment)
	case p.Type == records.NotificationEncouragement && comment != "":
		return p.Title, comment
	case message != "":
		return p.Title, message
	default:
		return p.Title, placeholder(p.TaskText, TaskPlaceholder)
	}
}

// decodedOr keeps a failed decryption distinguishable from an empty excerpt.
func decodedOr(original, decoded string) string {
	if original != "" && decoded == "" {
		return keys.Placeholder
	}
	return decoded
}

// Lock drops every key held in memory.
func (b *Bridge) Lock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lockLocked()
}

// unlocked reports whether any key is held in memory.
func (b *Bridge) unlocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys) > 0
}

func (b *Bridge) lockLocked() {
	b.keys = map[string]envelope.Key{}
	if b.relock != nil {
		b.relock.Stop()
		b.relock = nil
	}
}

func (b *Bridge) key(ctx context.Context, peer string) (envelope.Key, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k, ok := b.keys[peer]
	if !ok {
		material, found, err := b.cache.FriendKey(ctx, b.userID, peer)
		if err != nil {
			b.log.Warnf("reading cached key for %s: %v", peer, err)
			return envelope.Key{}, false
		}
		if !found {
			b.log.Debugf("no cached key for %s", peer)
			return envelope.Key{}, false
		}
		k, err = envelope.ImportKey(material)
		if err != nil {
			b.log.Warnf("cached key for %s is unusable: %v", peer, err)
			return envelope.Key{}, false
		}
		b.keys[peer] = k
	}

	if b.relock != nil {
		b.relock.Stop()
	}
	b.relock = b.clock.AfterFunc(b.relockAfter, b.Lock)
	return k, true
}

func (b *Bridge) open(s string, k envelope.Key) string {
	if !envelope.LooksEncrypted(s) {
		return s
	}
	plain, err := envelope.Decrypt(s, k)
	if err != nil {
		b.log.Debugf("excerpt did not decrypt: %v", err)
		return ""
	}
	return plain
}

// placeholder returns ph for an excerpt that still looks like ciphertext or
// holds keys.Placeholder.
func placeholder(excerpt, ph string) string {
	switch {
	case excerpt == "":
		return ""
	case envelope.LooksEncrypted(excerpt), strings.Contains(excerpt, keys.Placeholder):
		return ph
	default:
		return excerpt
	}
}
