package keycache

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LoadOrCreateDeviceKey reads the device key at path, creating it with mode
// 0600 if it does not exist.
func LoadOrCreateDeviceKey(path string) ([DeviceKeySize]byte, error) {
	var key [DeviceKeySize]byte

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != DeviceKeySize {
			return key, fmt.Errorf("device key at %s has %d bytes, expected %d", path, len(data), DeviceKeySize)
		}
		copy(key[:], data)
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return key, fmt.Errorf("failed to read device key: %w", err)
	}

	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("failed to generate device key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return key, fmt.Errorf("failed to create device key directory: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return key, fmt.Errorf("failed to write device key: %w", err)
	}
	return key, nil
}
