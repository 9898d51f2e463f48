// Package audit provides an audit trail of key and migration events.
//
// Creating a master key, creating a shared key with a peer, reloading keys,
// running the migration and backfilling friend content are each recorded in
// a per-user log in the nudge data directory. Nothing secret is written:
// entries carry ids and counts, never key material or task text.
//
// # Log Format
//
// The audit log is stored as JSON Lines (one JSON object per line) at:
//
//	$XDG_DATA_HOME/nudge/audit.jsonl
//
// # Usage
//
//	trail := audit.At(configs.UserNudgeSettings.DataDir, email, uid)
//	trail.Log(audit.Entry{Operation: audit.OpSharedKeyCreated, Peer: peer})
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
package audit
