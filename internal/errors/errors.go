package errors

import (
	"errors"
	"fmt"
)

// Key errors indicate a key could not be loaded, created or used.
var (
	// ErrKeyUnavailable indicates the key custodian has not finished
	// initialising, or the required key could not be fetched.
	ErrKeyUnavailable = errors.New("encryption key unavailable")

	// ErrInvalidKey indicates exported key material is malformed.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrDegraded indicates an encrypt call returned its input unchanged
	// because the required key was unavailable.
	ErrDegraded = errors.New("encryption degraded to plaintext")
)

// Cryptographic errors indicate failures while opening a payload.
var (
	// ErrDecryptFailed indicates a payload could not be decrypted, either
	// because the key is wrong or the payload is corrupt.
	ErrDecryptFailed = errors.New("failed to decrypt payload")

	// ErrEncryptFailed indicates a payload could not be sealed.
	ErrEncryptFailed = errors.New("failed to encrypt payload")
)

// Store errors are reported by document store adapters.
var (
	// ErrQuotaExhausted indicates the store rejected the request because a
	// read or write quota was exceeded.
	ErrQuotaExhausted = errors.New("store quota exhausted")

	// ErrNetworkUnavailable indicates the store could not be reached.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrTooManyValues indicates an "in" filter was given more than ten values.
	ErrTooManyValues = errors.New("too many values in filter")
)

// Record errors indicate a stored document does not match its schema.
var (
	// ErrUnknownField indicates a document carried a field its record type
	// does not define.
	ErrUnknownField = errors.New("unknown field in record")

	// ErrUnsupportedVersion indicates a record was written by a newer schema.
	ErrUnsupportedVersion = errors.New("unsupported record schema version")

	// ErrMissingField indicates a required field is absent.
	ErrMissingField = errors.New("required field missing")
)

// Session errors indicate misuse of the session API.
var (
	// ErrSessionClosed indicates the session was torn down.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotOwner indicates the caller tried to modify a task it does not own.
	ErrNotOwner = errors.New("task is owned by another user")

	// ErrNotSignedIn indicates no user identity is configured.
	ErrNotSignedIn = errors.New("no signed-in user")
)

// Is is errors.Is, re-exported so callers importing this package under its
// own name do not also need the standard library package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// UserMessage converts a write-path error into a message suitable for display.
// Quota errors are distinguished so the user knows to retry shortly.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExhausted):
		return "Rate limited, please retry in a few moments."
	case errors.Is(err, ErrNetworkUnavailable):
		return "You appear to be offline. Your change was not saved."
	case errors.Is(err, ErrKeyUnavailable):
		return "Encryption keys are still loading. Please try again shortly."
	case errors.Is(err, ErrNotOwner):
		return "Only the task owner can change this task."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
