// Package errors provides typed error values for nudge.
//
// Sentinel errors let callers branch on failure kinds with errors.Is()
// instead of matching strings.
//
// # Error Categories
//
//   - Key errors: the custodian is not ready or key material is bad
//     (ErrKeyUnavailable, ErrInvalidKey, ErrDegraded)
//   - Crypto errors: a payload could not be opened (ErrDecryptFailed)
//   - Store errors: quota, connectivity and lookup failures
//     (ErrQuotaExhausted, ErrNetworkUnavailable, ErrNotFound)
//   - Record errors: stored documents that do not match their schema
//     (ErrUnknownField, ErrUnsupportedVersion)
//   - Session errors: API misuse (ErrSessionClosed, ErrNotOwner)
//
// # Propagation
//
// Cryptographic and subscription errors are absorbed by the sync
// coordinator and never reach rendering code. Write-path errors are
// returned to the caller; UserMessage turns them into display text:
//
//	if err := sess.AddTask(ctx, text, opts); err != nil {
//	    fmt.Println(kerrors.UserMessage(err))
//	}
//
// Wrap errors with context:
//
//	return fmt.Errorf("reading key record for %s: %w", userID, errors.ErrNotFound)
package errors
