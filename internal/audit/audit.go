package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Operation names recorded in the trail.
const (
	OpMasterKeyCreated = "master_key_created"
	OpSharedKeyCreated = "shared_key_created"
	OpKeysReloaded     = "keys_reloaded"
	OpMigration        = "migration"
	OpBackfill         = "backfill"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	User      string `json:"user"` // Email of the signed-in user.
	UserID    string `json:"uid"`  // Id of the signed-in user.
	Operation string `json:"op"`   // Operation name.

	// Optional fields depending on operation.
	Peer   string `json:"peer,omitempty"`    // For shared key creation.
	PairID string `json:"pair_id,omitempty"` // For shared key creation.
	TaskID string `json:"task_id,omitempty"` // For backfill.
	Count  int    `json:"count,omitempty"`   // For migration/backfill.
	DryRun bool   `json:"dry_run,omitempty"` // For migration.
}

// Trail appends entries to a JSON Lines file. The zero Trail discards
// everything.
type Trail struct {
	Path   string
	User   string
	UserID string
}

// At returns a trail writing to audit.jsonl in dataDir.
func At(dataDir, user, userID string) Trail {
	return Trail{Path: filepath.Join(dataDir, "audit.jsonl"), User: user, UserID: userID}
}

// Log appends an entry to the audit log.
// If logging fails it is silently dropped; operations should not fail just
// because audit logging failed.
func (t Trail) Log(entry Entry) {
	if t.Path == "" {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	if entry.User == "" {
		entry.User = t.User
	}
	if entry.UserID == "" {
		entry.UserID = t.UserID
	}

	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(t.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = f.Write(append(data, '\n'))
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func (t Trail) ReadEntries() ([]Entry, error) {
	if t.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(t.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				// Skip partial writes.
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
