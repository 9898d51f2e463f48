package envelope

import (
	"encoding/base64"
	"strings"
	"testing"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"

	"pgregory.net/rapid"
)

func mustKey(t *testing.T) Key {
	t.Helper()
	k, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := mustKey(t)
	payload, err := Encrypt("Buy milk", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.HasPrefix(payload, FormatTag) {
		t.Fatalf("payload %q missing format tag", payload)
	}
	got, err := Decrypt(payload, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "Buy milk" {
		t.Fatalf("got %q, want %q", got, "Buy milk")
	}
}

func testRoundTripProperties(t *rapid.T) {
	var key Key
	copy(key[:], rapid.SliceOfN(rapid.Byte(), KeySize, KeySize).Draw(t, "key"))
	if key.IsZero() {
		t.Skip("zero key is rejected")
	}
	plaintext := rapid.String().Draw(t, "plaintext")

	payload, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !LooksEncrypted(payload) {
		t.Fatalf("LooksEncrypted(%q) = false", payload)
	}
	got, err := Decrypt(payload, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestRoundTripProperties(t *testing.T) {
	rapid.Check(t, testRoundTripProperties)
}

func TestDecryptWrongKey(t *testing.T) {
	k1, k2 := mustKey(t), mustKey(t)
	payload, err := Encrypt("secret-data", k1)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	_, err = Decrypt(payload, k2)
	if !kerrors.Is(err, kerrors.ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptTamperedTag(t *testing.T) {
	key := mustKey(t)
	payload, err := Encrypt("hello", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, FormatTag))
	raw[len(raw)-1] ^= 0xFF
	tampered := FormatTag + base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt(tampered, key); !kerrors.Is(err, kerrors.ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed after tag tamper, got %v", err)
	}
}

func TestDecryptMalformedInput(t *testing.T) {
	key := mustKey(t)
	tests := []struct {
		name    string
		payload string
	}{
		{"bad base64", "e1:***not base64***"},
		{"too short", "e1:" + base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.payload, key); !kerrors.Is(err, kerrors.ErrDecryptFailed) {
				t.Fatalf("Decrypt(%q) error = %v, want ErrDecryptFailed", tt.payload, err)
			}
		})
	}
}

func TestDecryptLegacyUntagged(t *testing.T) {
	key := mustKey(t)
	payload, err := Encrypt("legacy task", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	legacy := strings.TrimPrefix(payload, FormatTag)
	if !LooksEncrypted(legacy) {
		t.Fatalf("legacy payload %q not detected", legacy)
	}
	got, err := Decrypt(legacy, key)
	if err != nil {
		t.Fatalf("decrypt legacy: %v", err)
	}
	if got != "legacy task" {
		t.Fatalf("got %q", got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	key := mustKey(t)
	a, _ := Encrypt("same", key)
	b, _ := Encrypt("same", key)
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical payloads")
	}
}

func TestLooksEncrypted(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hello world", false},
		{"", false},
		{"e1:", true},
		{"e1:abc", true},
		{"Buy milk and eggs before the store closes", false},
		{strings.Repeat("A", 35), false},
		{strings.Repeat("A", 36), true},
		{strings.Repeat("A", 34) + "==", true},
		{strings.Repeat("A", 40) + "!", false},
	}
	for _, tt := range tests {
		if got := LooksEncrypted(tt.in); got != tt.want {
			t.Errorf("LooksEncrypted(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncryptShortStringIsTagged(t *testing.T) {
	key := mustKey(t)
	payload, err := Encrypt("", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !LooksEncrypted(payload) {
		t.Fatalf("tagged empty payload not detected")
	}
}

func TestImportExportKey(t *testing.T) {
	key := mustKey(t)
	got, err := ImportKey(key.Export())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got != key {
		t.Fatal("imported key differs from exported key")
	}

	if _, err := ImportKey("not-base64!"); !kerrors.Is(err, kerrors.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for bad base64, got %v", err)
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := ImportKey(short); !kerrors.Is(err, kerrors.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for short key, got %v", err)
	}
}

func TestZeroKeyRejected(t *testing.T) {
	if _, err := Encrypt("x", Key{}); !kerrors.Is(err, kerrors.ErrEncryptFailed) {
		t.Fatalf("expected ErrEncryptFailed for zero key, got %v", err)
	}
	key := mustKey(t)
	key.Zero()
	if !key.IsZero() {
		t.Fatal("Zero did not clear key")
	}
}
