package keycache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	key, err := LoadOrCreateDeviceKey(filepath.Join(dir, "device.key"))
	if err != nil {
		t.Fatalf("device key: %v", err)
	}
	path := filepath.Join(dir, "keys.db")
	c, err := Open(path, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, dir
}

func TestReplaceAndLoad(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCache(t)

	err := c.Replace(ctx, "alice", Entry{
		MasterKey:  "master-a",
		FriendKeys: map[string]string{"bob": "shared-ab", "carol": "shared-ac"},
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := c.Replace(ctx, "alice", Entry{MasterKey: "master-a", FriendKeys: map[string]string{"bob": "shared-ab"}}); err != nil {
		t.Fatalf("second Replace: %v", err)
	}

	e, err := c.load(ctx, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.MasterKey != "master-a" || len(e.FriendKeys) != 1 || e.FriendKeys["bob"] != "shared-ab" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}

	empty, err := c.load(ctx, "nobody")
	if err != nil || empty.MasterKey != "" || len(empty.FriendKeys) != 0 {
		t.Fatalf("expected empty entry, got %+v, %v", empty, err)
	}
}

func TestPutFriendAndLookup(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCache(t)

	if _, ok, err := c.FriendKey(ctx, "alice", "bob"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.PutFriend(ctx, "alice", "bob", "k1"); err != nil {
		t.Fatalf("PutFriend: %v", err)
	}
	if err := c.PutFriend(ctx, "alice", "bob", "k2"); err != nil {
		t.Fatalf("PutFriend overwrite: %v", err)
	}
	got, ok, err := c.FriendKey(ctx, "alice", "bob")
	if err != nil || !ok || got != "k2" {
		t.Fatalf("FriendKey = %q, %v, %v", got, ok, err)
	}
	if err := c.PutFriend(ctx, "alice", "", "k"); err == nil {
		t.Fatal("expected error for empty peer id")
	}
}

func TestMaterialIsSealedAtRest(t *testing.T) {
	ctx := context.Background()
	c, dir := openTestCache(t)
	if err := c.PutFriend(ctx, "alice", "bob", "very-secret-material"); err != nil {
		t.Fatalf("PutFriend: %v", err)
	}

	other, err := Open(filepath.Join(dir, "keys.db"), [DeviceKeySize]byte{1})
	if err != nil {
		t.Fatalf("Open with other key: %v", err)
	}
	defer other.Close()
	if _, _, err := other.FriendKey(ctx, "alice", "bob"); err == nil {
		t.Fatal("expected failure opening material with the wrong device key")
	}
}

func TestDeviceKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device.key")
	k1, err := LoadOrCreateDeviceKey(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	k2, err := LoadOrCreateDeviceKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if k1 != k2 {
		t.Fatal("device key changed between loads")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("device key mode = %v, want 0600", info.Mode().Perm())
	}

	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateDeviceKey(path); err == nil {
		t.Fatal("expected error for truncated device key")
	}
}
