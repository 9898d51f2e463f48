package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// IVSize is the GCM nonce length (96 bits).
	IVSize = 12

	// TagSize is the GCM authentication tag length (128 bits).
	TagSize = 16

	// FormatTag prefixes every payload produced by Encrypt.
	FormatTag = "e1:"

	// legacyMinLength is the shortest untagged base64 string treated as a
	// payload. Shorter strings are assumed to be plaintext.
	legacyMinLength = 36
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`)

// Key is a symmetric AES-256-GCM key.
type Key [KeySize]byte

// NewKey generates a random key.
func NewKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return Key{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return k, nil
}

// ImportKey parses key material produced by Key.Export.
func ImportKey(material string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", kerrors.ErrInvalidKey, err)
	}
	defer zero(raw)
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("%w: expected %d bytes, got %d", kerrors.ErrInvalidKey, KeySize, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// Export returns the key in its persisted form: standard base64 of the raw bytes.
func (k Key) Export() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// IsZero reports whether k is the zero key, which is never a valid key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Zero overwrites the key material.
func (k *Key) Zero() {
	zero(k[:])
}

// Encrypt seals plaintext under key and returns FormatTag + base64(IV || ciphertext || tag).
// A fresh random IV is drawn on every call.
func Encrypt(plaintext string, key Key) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kerrors.ErrEncryptFailed, err)
	}

	iv := make([]byte, IVSize, IVSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: generating iv: %v", kerrors.ErrEncryptFailed, err)
	}

	sealed := gcm.Seal(iv, iv, []byte(plaintext), nil)
	return FormatTag + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt, or the legacy untagged form.
// Every failure wraps errors.ErrDecryptFailed; an empty result is only ever
// returned for an empty plaintext.
func Decrypt(payload string, key Key) (string, error) {
	body := strings.TrimPrefix(payload, FormatTag)

	combined, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: malformed base64: %v", kerrors.ErrDecryptFailed, err)
	}
	if len(combined) < IVSize+TagSize {
		return "", fmt.Errorf("%w: payload too short (%d bytes)", kerrors.ErrDecryptFailed, len(combined))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kerrors.ErrDecryptFailed, err)
	}

	plaintext, err := gcm.Open(nil, combined[:IVSize], combined[IVSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", kerrors.ErrDecryptFailed)
	}
	return string(plaintext), nil
}

// LooksEncrypted reports whether s is in an encrypted format. Tagged strings
// always are; untagged strings are only if they look like legacy base64
// payloads. It is a format check used to avoid double encryption and to
// skip decrypting plaintext, not a guarantee that s will decrypt.
func LooksEncrypted(s string) bool {
	if strings.HasPrefix(s, FormatTag) {
		return true
	}
	return len(s) >= legacyMinLength && base64Pattern.MatchString(s)
}

func newGCM(key Key) (cipher.AEAD, error) {
	if key.IsZero() {
		return nil, kerrors.ErrInvalidKey
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, TagSize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
