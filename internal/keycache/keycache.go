package keycache

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/nacl/secretbox"
)

//go:embed schema.sql
var schema string

// masterSlot is the peer_id under which a user's master key is stored.
const masterSlot = ""

// DeviceKeySize is the length of the key sealing cache rows.
const DeviceKeySize = 32

// Entry is everything cached for one user.
type Entry struct {
	MasterKey  string
	FriendKeys map[string]string
	UpdatedAt  time.Time
}

// Cache is the durable key cache shared by the main process and the
// background agent. Key material is sealed with the device key before it is
// written.
type Cache struct {
	db        *sql.DB
	deviceKey [DeviceKeySize]byte
}

// Open opens or creates the cache database at path.
func Open(path string, deviceKey [DeviceKeySize]byte) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open key cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise key cache schema: %w", err)
	}
	return &Cache{db: db, deviceKey: deviceKey}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Replace overwrites everything cached for userID with e.
func (c *Cache) Replace(ctx context.Context, userID string, e Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin key cache update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM key_cache WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear key cache for %s: %w", userID, err)
	}
	now := time.Now().UnixMilli()
	if e.MasterKey != "" {
		if err := c.put(ctx, tx, userID, masterSlot, e.MasterKey, now); err != nil {
			return err
		}
	}
	for peer, material := range e.FriendKeys {
		if err := c.put(ctx, tx, userID, peer, material, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutFriend stores one shared key.
func (c *Cache) PutFriend(ctx context.Context, userID, peerID, material string) error {
	if peerID == masterSlot {
		return errors.New("peer id must not be empty")
	}
	return c.put(ctx, c.db, userID, peerID, material, time.Now().UnixMilli())
}

// load returns everything cached for userID. A user with nothing cached
// yields an empty entry.
func (c *Cache) load(ctx context.Context, userID string) (Entry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT peer_id, material, updated_at FROM key_cache WHERE user_id = ?`, userID)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read key cache: %w", err)
	}
	defer rows.Close()

	e := Entry{FriendKeys: map[string]string{}}
	for rows.Next() {
		var (
			peer    string
			sealed  []byte
			updated int64
		)
		if err := rows.Scan(&peer, &sealed, &updated); err != nil {
			return Entry{}, fmt.Errorf("failed to scan key cache row: %w", err)
		}
		material, err := c.open(sealed)
		if err != nil {
			return Entry{}, fmt.Errorf("key cache row %s/%s: %w", userID, peer, err)
		}
		if peer == masterSlot {
			e.MasterKey = material
		} else {
			e.FriendKeys[peer] = material
		}
		if t := time.UnixMilli(updated); t.After(e.UpdatedAt) {
			e.UpdatedAt = t
		}
	}
	return e, rows.Err()
}

// FriendKey returns the cached shared key between userID and peerID.
func (c *Cache) FriendKey(ctx context.Context, userID, peerID string) (string, bool, error) {
	var sealed []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT material FROM key_cache WHERE user_id = ? AND peer_id = ?`, userID, peerID,
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key cache: %w", err)
	}
	material, err := c.open(sealed)
	if err != nil {
		return "", false, err
	}
	return material, true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *Cache) put(ctx context.Context, db execer, userID, peerID, material string, now int64) error {
	sealed, err := c.seal(material)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO key_cache (user_id, peer_id, material, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, peer_id) DO UPDATE SET material = excluded.material, updated_at = excluded.updated_at`,
		userID, peerID, sealed, now)
	if err != nil {
		return fmt.Errorf("failed to write key cache: %w", err)
	}
	return nil
}

func (c *Cache) seal(material string) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(material), &nonce, &c.deviceKey), nil
}

func (c *Cache) open(sealed []byte) (string, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return "", errors.New("sealed key material too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.deviceKey)
	if !ok {
		return "", errors.New("failed to open sealed key material: wrong device key?")
	}
	return string(plaintext), nil
}
